// Package notify fans fired alerts out to configured notification channels.
// One channel's failure never prevents delivery attempts on the others, and
// delivery failures never propagate back into alert creation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"footprintiq-backend/services/alert-engine/internal/logger"
	"footprintiq-backend/services/alert-engine/internal/metrics"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

const (
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
)

// ChannelStore is the slice of the repository the dispatcher needs.
type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (storage.Channel, error)
	RecordChannelSuccess(ctx context.Context, id string, at time.Time) error
	RecordChannelFailure(ctx context.Context, id string) error
}

// WebhookConfig is the config blob of a webhook channel.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// EmailConfig is the config blob of an email channel.
type EmailConfig struct {
	Email string `json:"email"`
}

// Payload is the wire body sent to webhook channels.
type Payload struct {
	AlertID  string    `json:"alert_id"`
	Severity string    `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	FiredAt  time.Time `json:"fired_at"`
}

// Outcome records the result of one channel delivery attempt.
type Outcome struct {
	ChannelID   string `json:"channel_id"`
	ChannelType string `json:"channel_type,omitempty"`
	Delivered   bool   `json:"delivered"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Dispatcher struct {
	Channels        ChannelStore
	Client          *http.Client
	EmailServiceURL string
}

func NewDispatcher(channels ChannelStore, emailServiceURL string) *Dispatcher {
	return &Dispatcher{
		Channels:        channels,
		Client:          &http.Client{Timeout: 10 * time.Second},
		EmailServiceURL: emailServiceURL,
	}
}

// Dispatch delivers the alert to every channel concurrently and collects
// per-channel outcomes. Missing and disabled channels are skipped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, alert storage.ActiveAlert, channelIDs []string) []Outcome {
	outcomes := make([]Outcome, len(channelIDs))
	var wg sync.WaitGroup
	for i, id := range channelIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = d.dispatchOne(ctx, alert, id)
		}(i, id)
	}
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, alert storage.ActiveAlert, channelID string) Outcome {
	channel, err := d.Channels.GetChannel(ctx, channelID)
	if err != nil || !channel.IsEnabled {
		return Outcome{ChannelID: channelID, Skipped: true}
	}
	return d.deliver(ctx, alert, channel)
}

// deliver sends the alert through one channel and updates its diagnostic
// counters. Counters never block future dispatch.
func (d *Dispatcher) deliver(ctx context.Context, alert storage.ActiveAlert, channel storage.Channel) Outcome {
	log := logger.WithComponent("dispatcher")
	outcome := Outcome{ChannelID: channel.ID, ChannelType: channel.ChannelType}

	var err error
	switch channel.ChannelType {
	case ChannelWebhook:
		err = d.sendWebhook(ctx, channel.Config, alert)
	case ChannelEmail:
		err = d.sendEmail(ctx, channel.Config, alert)
	default:
		err = fmt.Errorf("unsupported channel type %q", channel.ChannelType)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("channel_id", channel.ID).
			Str("channel_type", channel.ChannelType).
			Str("alert_id", alert.ID).
			Msg("notification delivery failed")
		if recErr := d.Channels.RecordChannelFailure(ctx, channel.ID); recErr != nil {
			log.Warn().Err(recErr).Str("channel_id", channel.ID).Msg("failed to record channel failure")
		}
		metrics.NotificationsTotal.WithLabelValues(channel.ChannelType, "failure").Inc()
		outcome.Error = err.Error()
		return outcome
	}

	if recErr := d.Channels.RecordChannelSuccess(ctx, channel.ID, time.Now().UTC()); recErr != nil {
		log.Warn().Err(recErr).Str("channel_id", channel.ID).Msg("failed to record channel success")
	}
	metrics.NotificationsTotal.WithLabelValues(channel.ChannelType, "success").Inc()
	outcome.Delivered = true
	return outcome
}

// SendTest pushes a synthetic info alert through the regular delivery path
// so operators can verify a channel end to end. Unlike Dispatch, a missing
// channel is an error surfaced to the caller.
func (d *Dispatcher) SendTest(ctx context.Context, channelID string) (Outcome, error) {
	channel, err := d.Channels.GetChannel(ctx, channelID)
	if err != nil {
		return Outcome{}, err
	}
	testAlert := storage.ActiveAlert{
		ID:       "test",
		Severity: storage.SeverityInfo,
		Title:    "Test Alert",
		Message:  "This is a test notification from FootprintIQ",
		FiredAt:  time.Now().UTC(),
	}
	outcome := d.deliver(ctx, testAlert, channel)
	if outcome.Error != "" {
		return outcome, fmt.Errorf("test notification failed: %s", outcome.Error)
	}
	return outcome, nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, rawConfig json.RawMessage, alert storage.ActiveAlert) error {
	var cfg WebhookConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return fmt.Errorf("decode webhook config: %w", err)
	}
	if cfg.URL == "" {
		return fmt.Errorf("webhook channel has no url")
	}
	body, err := json.Marshal(Payload{
		AlertID:  alert.ID,
		Severity: alert.Severity,
		Title:    alert.Title,
		Message:  alert.Message,
		FiredAt:  alert.FiredAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook failed: %s", resp.Status)
	}
	return nil
}

// sendEmail hands the message off to the external email-sending service.
func (d *Dispatcher) sendEmail(ctx context.Context, rawConfig json.RawMessage, alert storage.ActiveAlert) error {
	var cfg EmailConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return fmt.Errorf("decode email config: %w", err)
	}
	if cfg.Email == "" {
		return fmt.Errorf("email channel has no address")
	}
	if d.EmailServiceURL == "" {
		return fmt.Errorf("email service not configured")
	}
	body, err := json.Marshal(map[string]string{
		"to":      cfg.Email,
		"subject": fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Title),
		"message": alert.Message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.EmailServiceURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email service failed: %s", resp.Status)
	}
	return nil
}
