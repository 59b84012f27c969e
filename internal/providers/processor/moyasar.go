package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/glamlot/glamlot/internal/config"
	"go.uber.org/zap"
)

// Moyasar talks to the Moyasar payments API. Amounts are minor units
// (halalas). In test mode every call succeeds with a synthetic reference
// so local settlement runs never touch the network.
type Moyasar struct {
	cfg    config.ProcessorConfig
	log    *zap.Logger
	client *http.Client
}

func NewMoyasar(cfg config.ProcessorConfig, log *zap.Logger) *Moyasar {
	return &Moyasar{
		cfg: cfg,
		log: log.Named("processor.moyasar"),
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

var _ Processor = (*Moyasar)(nil)

type paymentResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Source  struct {
		Message string `json:"message"`
	} `json:"source"`
}

func (m *Moyasar) Authorize(ctx context.Context, payer string, amount int64, currency string) (string, error) {
	if m.cfg.TestMode {
		return fmt.Sprintf("test_auth_%d", time.Now().UTC().UnixNano()), nil
	}
	payload := map[string]any{
		"amount":   amount,
		"currency": currency,
		"source":   map[string]any{"type": "token", "token": payer},
		"manual":   true,
	}
	out, err := m.post(ctx, m.cfg.BaseURL+"/payments", payload)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (m *Moyasar) Capture(ctx context.Context, authorizationRef string, amount int64) (string, error) {
	if m.cfg.TestMode {
		return fmt.Sprintf("test_cap_%d", time.Now().UTC().UnixNano()), nil
	}
	url := fmt.Sprintf("%s/payments/%s/capture", m.cfg.BaseURL, authorizationRef)
	out, err := m.post(ctx, url, map[string]any{"amount": amount})
	if err != nil {
		return "", err
	}
	if out.Status != "captured" && out.Status != "paid" {
		reason := out.Message
		if reason == "" {
			reason = out.Source.Message
		}
		if reason == "" {
			reason = out.Status
		}
		return "", &DeclineError{Reason: reason}
	}
	return out.ID, nil
}

func (m *Moyasar) Cancel(ctx context.Context, authorizationRef string) error {
	if m.cfg.TestMode {
		return nil
	}
	url := fmt.Sprintf("%s/payments/%s/void", m.cfg.BaseURL, authorizationRef)
	_, err := m.post(ctx, url, nil)
	return err
}

func (m *Moyasar) post(ctx context.Context, url string, payload any) (*paymentResponse, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(m.cfg.APIKey, "")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("moyasar: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 4xx payment errors are declines, everything else is transport.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			reason := out.Message
			if reason == "" {
				reason = resp.Status
			}
			return nil, &DeclineError{Reason: reason}
		}
		return nil, fmt.Errorf("moyasar: %s", resp.Status)
	}
	return &out, nil
}
