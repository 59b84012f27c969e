// Package notification delivers the winner announcement after a
// successful settlement. Delivery is best-effort: failures are logged and
// counted but never surfaced as settlement errors.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/observability/metrics"
	"github.com/glamlot/glamlot/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// WinnerMessage carries everything the winner needs to claim their
// recording privilege.
type WinnerMessage struct {
	AuctionID      snowflake.ID
	AuctionTitle   string
	BidID          snowflake.ID
	WinnerContact  string
	Amount         int64
	Currency       string
	RecordingToken string
	TokenExpiresAt time.Time
}

type Trigger interface {
	NotifyWinner(ctx context.Context, msg WinnerMessage) error
}

var winnerTemplate = template.Must(template.New("winner").Parse(`
<h2>Congratulations, you won!</h2>
<p>Your bid of {{.AmountDisplay}} {{.Currency}} won the auction <b>{{.AuctionTitle}}</b>.</p>
<p>Record your video using this token before {{.ExpiresDisplay}}:</p>
<p><code>{{.RecordingToken}}</code></p>
`))

type trigger struct {
	provider email.Provider
	log      *zap.Logger
}

type Param struct {
	fx.In

	Provider email.Provider
	Log      *zap.Logger
}

func New(p Param) Trigger {
	return &trigger{
		provider: p.Provider,
		log:      p.Log.Named("notification"),
	}
}

var Module = fx.Module("notification",
	fx.Provide(New),
)

// NotifyWinner implements Trigger. The returned error is informational;
// callers record it and move on.
func (t *trigger) NotifyWinner(ctx context.Context, msg WinnerMessage) error {
	var body bytes.Buffer
	err := winnerTemplate.Execute(&body, map[string]any{
		"AuctionTitle":   msg.AuctionTitle,
		"AmountDisplay":  fmt.Sprintf("%d.%02d", msg.Amount/100, msg.Amount%100),
		"Currency":       msg.Currency,
		"RecordingToken": msg.RecordingToken,
		"ExpiresDisplay": msg.TokenExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("You won: %s", msg.AuctionTitle)
	if err := t.provider.Send(ctx, []string{msg.WinnerContact}, subject, body.String()); err != nil {
		metrics.Settlement().IncNotification(false)
		t.log.Warn("winner notification failed",
			zap.String("auction_id", msg.AuctionID.String()),
			zap.String("bid_id", msg.BidID.String()),
			zap.Error(err),
		)
		return err
	}
	metrics.Settlement().IncNotification(true)
	return nil
}
