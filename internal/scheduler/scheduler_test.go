package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snotify/pkg/logx"
)

func TestParseSpecVariants(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 */5 * * * *", false},
		{"@hourly", false},
		{"@every 10s", false},
		{"01:30", false},
		{"24:00", true},
		{"not-a-schedule", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := ParseSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHHMMIsDaily(t *testing.T) {
	sched, err := ParseSpec("07:45")
	require.NoError(t, err)
	from := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 7, 45, 0, 0, time.UTC), sched.Next(from))
}

func TestApplyRejectsBadJobsAtomically(t *testing.T) {
	s := New(func(context.Context, Job) {}, logx.Nop())
	require.NoError(t, s.Apply("", []Job{{Name: "a", Spec: "@hourly"}}))

	err := s.Apply("", []Job{{Name: "b", Spec: "@daily"}, {Name: "c", Spec: "bogus"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schedule "c"`)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)

	assert.Error(t, s.Apply("Mars/Olympus", nil))
}

func TestRunFiresJobs(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []Job
	)
	got := make(chan struct{}, 1)
	s := New(func(_ context.Context, j Job) {
		mu.Lock()
		fired = append(fired, j)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	}, logx.Nop())
	require.NoError(t, s.Apply("UTC", []Job{{Name: "tick", Spec: "@every 1s", Text: "hi", Channel: "email"}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hi", fired[0].Text)
	assert.Equal(t, "email", fired[0].Channel)
}

func TestApplyWhileRunningSwapsJobs(t *testing.T) {
	s := New(func(context.Context, Job) {}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.c != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Apply("", []Job{{Name: "x", Spec: "@daily"}, {Name: "y", Spec: "12:00"}}))
	assert.Len(t, s.Entries(), 2)
	cancel()
	require.NoError(t, <-done)
}
