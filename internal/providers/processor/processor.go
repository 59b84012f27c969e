// Package processor wraps the external payment processor behind the
// narrow authorize / capture / cancel contract the settlement engine
// consumes.
package processor

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeclined marks a capture the processor refused (expired card,
// insufficient funds). A declined capture moves settlement to the next
// ranked candidate; any other error is treated the same way for the
// current candidate but is worth alerting on.
var ErrDeclined = errors.New("processor: declined")

// DeclineError carries the processor's decline reason.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("processor: declined: %s", e.Reason)
}

func (e *DeclineError) Unwrap() error { return ErrDeclined }

type Processor interface {
	// Authorize reserves funds against the payer's payment method and
	// returns the authorization reference to capture or cancel later.
	Authorize(ctx context.Context, payer string, amount int64, currency string) (string, error)
	// Capture converts a pre-authorization into a charge and returns the
	// processor's capture reference.
	Capture(ctx context.Context, authorizationRef string, amount int64) (string, error)
	// Cancel releases a pre-authorization. Reserved funds are a liability
	// for the bidder, so every authorization that does not capture must be
	// cancelled.
	Cancel(ctx context.Context, authorizationRef string) error
}
