package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snotify/pkg/channel"
	"snotify/pkg/notify"
)

func TestObserveCountsAttemptsAndSends(t *testing.T) {
	m := New()
	d := notify.New(notify.WithObserver(m))
	require.NoError(t, d.AddChannel(channel.NewFunc("bad", channel.Addresses("a"), func(context.Context, channel.Message, []channel.Recipient) error {
		return errors.New("down")
	}), ""))
	require.NoError(t, d.AddChannel(channel.NewFunc("good", channel.Addresses("b"), func(context.Context, channel.Message, []channel.Recipient) error {
		return nil
	}), ""))
	d.SetFallbackOrder([]string{"ghost", "bad", "good"})

	_, err := d.Send(context.Background(), channel.Message{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("bad", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("good", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("ghost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("fallback", "delivered")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestObserveSendResults(t *testing.T) {
	m := New()
	m.Observe(context.Background(), notify.Event{Kind: notify.EventSendCompleted, Mode: notify.ModeDirect, Err: errors.New("x"), Duration: time.Second})
	m.Observe(context.Background(), notify.Event{Kind: notify.EventSendCompleted, Mode: notify.ModeFallback, Outcome: &notify.Outcome{}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("direct", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("fallback", "undelivered")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RegisterBusDropped(func() uint64 { return 3 })
	m.Observe(context.Background(), notify.Event{Kind: notify.EventChannelSkipped, Channel: "sms"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `snotify_channel_skipped_total{channel="sms"} 1`))
	assert.True(t, strings.Contains(text, "snotify_eventbus_dropped_total 3"))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
