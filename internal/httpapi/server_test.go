package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"snotify/internal/storage"
	"snotify/pkg/channel"
	"snotify/pkg/notify"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) RecentSends(ctx context.Context, limit int) ([]storage.SendRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.SendRecord), args.Error(1)
}

type recorder struct {
	mu    sync.Mutex
	calls []struct {
		msg        channel.Message
		recipients []channel.Recipient
	}
}

func (r *recorder) channel(name string, fail error) *channel.Func {
	return channel.NewFunc(name, channel.Addresses(name+"-default"), func(_ context.Context, msg channel.Message, rs []channel.Recipient) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, struct {
			msg        channel.Message
			recipients []channel.Recipient
		}{msg, rs})
		return fail
	})
}

func newTestServer(t *testing.T, cfg Config, history History) (*httptest.Server, *notify.Dispatcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	d := notify.New()
	require.NoError(t, d.AddChannel(rec.channel("telegram", errors.New("bot blocked")), ""))
	require.NoError(t, d.AddChannel(rec.channel("email", nil), ""))

	s := New(cfg, Deps{
		Notifier: d,
		History:  history,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) }),
		Health:   func() any { return "fine" },
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, d, rec
}

func post(t *testing.T, ts *httptest.Server, body any, token string) (*http.Response, Response) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/notify", bytes.NewReader(b))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func outcomeOf(t *testing.T, r Response) OutcomeView {
	t.Helper()
	b, err := json.Marshal(r.Data)
	require.NoError(t, err)
	var v OutcomeView
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

func TestNotifyFallbackDelivers(t *testing.T) {
	ts, d, rec := newTestServer(t, Config{}, nil)
	d.SetFallbackOrder([]string{"telegram", "email"})

	resp, body := post(t, ts, NotifyRequest{Text: "disk full", Subject: "alert"}, "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := outcomeOf(t, body)
	assert.Equal(t, "fallback", v.Mode)
	assert.Equal(t, "email", v.Delivered)
	require.Len(t, v.Attempts, 2)
	assert.False(t, v.Attempts[0].OK)
	assert.Contains(t, v.Attempts[0].Error, "bot blocked")
	assert.Equal(t, []string{"email-default"}, v.Attempts[1].Recipients)
	assert.Equal(t, "alert", rec.calls[1].msg.Subject)
}

func TestNotifyDirectFailureMapsToBadGateway(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{}, nil)

	resp, body := post(t, ts, NotifyRequest{Text: "x", Channel: "telegram"}, "")

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "DELIVERY_FAILED", body.Error.Code)
	assert.Equal(t, "direct", outcomeOf(t, body).Mode)
}

func TestNotifyUnknownChannel(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{}, nil)
	resp, body := post(t, ts, NotifyRequest{Text: "x", Channel: "sms"}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CHANNEL_NOT_FOUND", body.Error.Code)
}

func TestNotifyRecipientsOverride(t *testing.T) {
	ts, _, rec := newTestServer(t, Config{}, nil)
	resp, _ := post(t, ts, NotifyRequest{Text: "x", Channel: "email", Recipients: []string{"a@example.com"}}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, channel.Addresses("a@example.com"), rec.calls[0].recipients)
}

func TestNotifyNonStrictUndeliveredIsAccepted(t *testing.T) {
	ts, d, _ := newTestServer(t, Config{}, nil)
	d.SetFallbackOrder([]string{"telegram"})

	resp, body := post(t, ts, NotifyRequest{Text: "x"}, "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, outcomeOf(t, body).Delivered)

	strict := true
	resp, body = post(t, ts, NotifyRequest{Text: "x", Strict: &strict}, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body.Error.Message, "all 1 channels failed")
}

func TestNotifyBroadcast(t *testing.T) {
	ts, _, rec := newTestServer(t, Config{}, nil)
	resp, body := post(t, ts, NotifyRequest{Text: "x", Broadcast: true}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "broadcast", outcomeOf(t, body).Mode)
	assert.Len(t, rec.calls, 2)
}

func TestNotifyRejectsBadInput(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{}, nil)

	resp, body := post(t, ts, map[string]any{"subject": "no text"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)

	resp, body = post(t, ts, map[string]any{"text": "x", "bogus": 1}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body.Error.Code)

	resp, _ = post(t, ts, NotifyRequest{Text: "x", Channel: "email", Broadcast: true}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequiresBearerToken(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{Token: "s3cret"}, nil)

	resp, body := post(t, ts, NotifyRequest{Text: "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	resp, _ = post(t, ts, NotifyRequest{Text: "x"}, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health and metrics stay open.
	hr, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	hr.Body.Close()
	assert.Equal(t, http.StatusOK, hr.StatusCode)
}

func TestChannelsListing(t *testing.T) {
	ts, d, _ := newTestServer(t, Config{}, nil)
	d.SetFallbackOrder([]string{"email"})

	resp, err := http.Get(ts.URL + "/v1/channels")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Data struct {
			Channels      []ChannelView `json:"channels"`
			FallbackOrder []string      `json:"fallback_order"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data.Channels, 2)
	assert.Equal(t, "telegram", body.Data.Channels[0].Name)
	assert.Equal(t, []string{"telegram-default"}, body.Data.Channels[0].Recipients)
	assert.Equal(t, []string{"email"}, body.Data.FallbackOrder)
}

func TestSendsHistory(t *testing.T) {
	h := &mockHistory{}
	h.On("RecentSends", mock.Anything, 5).Return([]storage.SendRecord{{ID: "s1", Mode: "direct", Delivered: "email"}}, nil)
	ts, _, _ := newTestServer(t, Config{}, h)

	resp, err := http.Get(ts.URL + "/v1/sends?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Data []storage.SendRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "s1", body.Data[0].ID)
	h.AssertExpectations(t)

	bad, err := http.Get(ts.URL + "/v1/sends?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestSendsWithoutStorage(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{}, nil)
	resp, err := http.Get(ts.URL + "/v1/sends")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsAndHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]any{"status": "ok", "detail": "fine"}, body.Data)
}

func TestPprofMountedBehindToken(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{Token: "s3cret", Pprof: true}, nil)

	resp, err := http.Get(ts.URL + "/debug/pprof/cmdline")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/debug/pprof/cmdline", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	off, _, _ := newTestServer(t, Config{}, nil)
	resp, err = http.Get(off.URL + "/debug/pprof/cmdline")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
