package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"footprintiq-backend/services/alert-engine/internal/logger"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

type fakeChannels struct {
	mu        sync.Mutex
	channels  map[string]storage.Channel
	successes map[string]int
	failures  map[string]int
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{
		channels:  map[string]storage.Channel{},
		successes: map[string]int{},
		failures:  map[string]int{},
	}
}

func (f *fakeChannels) add(ch storage.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
}

func (f *fakeChannels) GetChannel(_ context.Context, id string) (storage.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return storage.Channel{}, storage.ErrNotFound
	}
	return ch, nil
}

func (f *fakeChannels) RecordChannelSuccess(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes[id]++
	return nil
}

func (f *fakeChannels) RecordChannelFailure(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id]++
	return nil
}

func webhookChannel(id, url string, headers map[string]string) storage.Channel {
	cfg, _ := json.Marshal(WebhookConfig{URL: url, Headers: headers})
	return storage.Channel{
		ID: id, WorkspaceID: "ws-1", Name: "hook " + id,
		ChannelType: ChannelWebhook, Config: cfg, IsEnabled: true,
	}
}

func testAlert() storage.ActiveAlert {
	return storage.ActiveAlert{
		ID:       "a1",
		Severity: storage.SeverityCritical,
		Title:    "High error rate",
		Message:  "Alert: High error rate triggered",
		Status:   storage.StatusFiring,
		FiredAt:  time.Now().UTC(),
	}
}

func TestDispatchWebhookPayloadAndHeaders(t *testing.T) {
	var gotPayload Payload
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	channels := newFakeChannels()
	channels.add(webhookChannel("ch-1", srv.URL, map[string]string{"Authorization": "Bearer tok"}))
	d := NewDispatcher(channels, "")

	alert := testAlert()
	outcomes := d.Dispatch(context.Background(), alert, []string{"ch-1"})
	if len(outcomes) != 1 {
		t.Fatalf("want one outcome, got %d", len(outcomes))
	}
	if !outcomes[0].Delivered || outcomes[0].Error != "" {
		t.Fatalf("want delivered outcome, got %+v", outcomes[0])
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("custom header not forwarded, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type: got %q", gotContentType)
	}
	if gotPayload.AlertID != alert.ID || gotPayload.Title != alert.Title || gotPayload.Severity != alert.Severity {
		t.Fatalf("unexpected payload %+v", gotPayload)
	}
	if channels.successes["ch-1"] != 1 || channels.failures["ch-1"] != 0 {
		t.Fatalf("counters: successes=%d failures=%d", channels.successes["ch-1"], channels.failures["ch-1"])
	}
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	channels := newFakeChannels()
	channels.add(webhookChannel("ok", okSrv.URL, nil))
	channels.add(webhookChannel("bad", badSrv.URL, nil))
	disabled := webhookChannel("off", okSrv.URL, nil)
	disabled.IsEnabled = false
	channels.add(disabled)
	d := NewDispatcher(channels, "")

	outcomes := d.Dispatch(context.Background(), testAlert(), []string{"ok", "bad", "off", "ghost"})
	if len(outcomes) != 4 {
		t.Fatalf("want 4 outcomes, got %d", len(outcomes))
	}
	byID := map[string]Outcome{}
	for _, o := range outcomes {
		byID[o.ChannelID] = o
	}
	if !byID["ok"].Delivered {
		t.Fatalf("ok channel must deliver despite bad one, got %+v", byID["ok"])
	}
	if byID["bad"].Delivered || byID["bad"].Error == "" {
		t.Fatalf("bad channel must fail, got %+v", byID["bad"])
	}
	if !byID["off"].Skipped {
		t.Fatalf("disabled channel must be skipped, got %+v", byID["off"])
	}
	if !byID["ghost"].Skipped {
		t.Fatalf("missing channel must be skipped, got %+v", byID["ghost"])
	}
	if channels.successes["ok"] != 1 {
		t.Fatalf("ok channel success counter: got %d", channels.successes["ok"])
	}
	if channels.failures["bad"] != 1 {
		t.Fatalf("bad channel failure counter: got %d", channels.failures["bad"])
	}
	if channels.successes["off"]+channels.failures["off"] != 0 {
		t.Fatalf("skipped channel must not touch counters")
	}
}

func TestDispatchEmail(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg, _ := json.Marshal(EmailConfig{Email: "ops@example.com"})
	channels := newFakeChannels()
	channels.add(storage.Channel{
		ID: "mail", ChannelType: ChannelEmail, Config: cfg, IsEnabled: true,
	})
	d := NewDispatcher(channels, srv.URL)

	outcomes := d.Dispatch(context.Background(), testAlert(), []string{"mail"})
	if !outcomes[0].Delivered {
		t.Fatalf("want delivered, got %+v", outcomes[0])
	}
	if got["to"] != "ops@example.com" {
		t.Fatalf("to: got %q", got["to"])
	}
	if got["subject"] != "[CRITICAL] High error rate" {
		t.Fatalf("subject: got %q", got["subject"])
	}
	if got["message"] != "Alert: High error rate triggered" {
		t.Fatalf("message: got %q", got["message"])
	}
}

func TestDispatchUnsupportedChannelType(t *testing.T) {
	channels := newFakeChannels()
	channels.add(storage.Channel{
		ID: "sms", ChannelType: "sms", Config: json.RawMessage(`{}`), IsEnabled: true,
	})
	d := NewDispatcher(channels, "")

	outcomes := d.Dispatch(context.Background(), testAlert(), []string{"sms"})
	if outcomes[0].Delivered || outcomes[0].Error == "" {
		t.Fatalf("unsupported type must fail, got %+v", outcomes[0])
	}
	if channels.failures["sms"] != 1 {
		t.Fatalf("failure counter: got %d", channels.failures["sms"])
	}
}

func TestSendTest(t *testing.T) {
	var gotPayload Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	channels := newFakeChannels()
	channels.add(webhookChannel("ch-1", srv.URL, nil))
	d := NewDispatcher(channels, "")

	outcome, err := d.SendTest(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Delivered {
		t.Fatalf("want delivered, got %+v", outcome)
	}
	if gotPayload.Title != "Test Alert" {
		t.Fatalf("title: got %q", gotPayload.Title)
	}
	if gotPayload.Message != "This is a test notification from FootprintIQ" {
		t.Fatalf("message: got %q", gotPayload.Message)
	}
	if gotPayload.Severity != storage.SeverityInfo {
		t.Fatalf("severity: got %q", gotPayload.Severity)
	}
	if channels.successes["ch-1"] != 1 {
		t.Fatalf("test delivery must update counters, got %d", channels.successes["ch-1"])
	}
}

func TestSendTestUnknownChannel(t *testing.T) {
	d := NewDispatcher(newFakeChannels(), "")
	if _, err := d.SendTest(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}

func TestSendTestDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	channels := newFakeChannels()
	channels.add(webhookChannel("ch-1", srv.URL, nil))
	d := NewDispatcher(channels, "")

	_, err := d.SendTest(context.Background(), "ch-1")
	if err == nil || !strings.Contains(err.Error(), "test notification failed") {
		t.Fatalf("want delivery failure error, got %v", err)
	}
}

func TestSendEmailWithoutServiceConfigured(t *testing.T) {
	cfg, _ := json.Marshal(EmailConfig{Email: "ops@example.com"})
	channels := newFakeChannels()
	channels.add(storage.Channel{
		ID: "mail", ChannelType: ChannelEmail, Config: cfg, IsEnabled: true,
	})
	d := NewDispatcher(channels, "")

	outcomes := d.Dispatch(context.Background(), testAlert(), []string{"mail"})
	if outcomes[0].Delivered || outcomes[0].Error == "" {
		t.Fatalf("email without service url must fail, got %+v", outcomes[0])
	}
}
