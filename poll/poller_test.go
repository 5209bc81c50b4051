package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pdfcraft/go-pdfcraft/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

// scriptedQuerier answers with its statuses in order, repeating the last one.
type scriptedQuerier struct {
	statuses []Status
	err      error
	calls    int
	// onQuery runs before every answer.
	onQuery func()
}

func (q *scriptedQuerier) Status(_ context.Context, _ string) (Status, error) {
	if q.onQuery != nil {
		q.onQuery()
	}
	q.calls++
	if q.err != nil {
		return Status{}, q.err
	}
	idx := min(q.calls-1, len(q.statuses)-1)
	return q.statuses[idx], nil
}

func newTestPoller(t *testing.T, config Config, querier StatusQuerier) (*Poller, *fakeClock) {
	t.Helper()

	poller, err := New(config, querier, log.NewLogger())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	poller.now = clock.Now
	poller.sleep = clock.Sleep
	return poller, clock
}

func TestPoller_Wait_Completed(t *testing.T) {
	querier := &scriptedQuerier{statuses: []Status{
		{State: "pending"},
		{State: "processing"},
		{State: "processing"},
		{State: "completed", DownloadURL: "https://example.com/out.zip"},
	}}
	poller, clock := newTestPoller(t, DefaultConfig(), querier)

	url, err := poller.Wait(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/out.zip", url)
	assert.Equal(t, 4, querier.calls)
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}, clock.sleeps)
}

func TestPoller_Wait_IntervalSequence(t *testing.T) {
	statuses := make([]Status, 7)
	for i := range statuses {
		statuses[i] = Status{State: "processing"}
	}
	statuses[6] = Status{State: "completed", DownloadURL: "u"}
	poller, clock := newTestPoller(t, DefaultConfig(), &scriptedQuerier{statuses: statuses})

	_, err := poller.Wait(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}, clock.sleeps)
}

func TestPoller_Wait_Timeout(t *testing.T) {
	querier := &scriptedQuerier{statuses: []Status{{State: "processing"}}}
	config := Config{MaxWait: 3 * time.Second, CheckInterval: time.Second, MaxCheckInterval: 5 * time.Second, BackoffFactor: 1.5}
	poller, clock := newTestPoller(t, config, querier)

	_, err := poller.Wait(context.Background(), "job-1")

	var timeoutErr *errs.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "job-1", timeoutErr.JobID)
	assert.Equal(t, 3*time.Second, timeoutErr.Elapsed)
	assert.Equal(t, 3, querier.calls)
	// the last sleep is cut to the remaining budget
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond, 500 * time.Millisecond}, clock.sleeps)
}

func TestPoller_Wait_NoQueryAfterDeadline(t *testing.T) {
	querier := &scriptedQuerier{statuses: []Status{{State: "processing"}}}
	config := Config{MaxWait: 3 * time.Second, CheckInterval: time.Second, MaxCheckInterval: time.Second, BackoffFactor: 1}
	poller, clock := newTestPoller(t, config, querier)
	// a slow status call eats the whole budget
	querier.onQuery = func() { clock.now = clock.now.Add(4 * time.Second) }

	_, err := poller.Wait(context.Background(), "job-1")

	var timeoutErr *errs.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 1, querier.calls)
	assert.Empty(t, clock.sleeps)
}

func TestPoller_Wait_CompletedWithoutURL(t *testing.T) {
	poller, _ := newTestPoller(t, DefaultConfig(), &scriptedQuerier{statuses: []Status{{State: "completed"}}})

	_, err := poller.Wait(context.Background(), "job-1")

	var protocolErr *errs.ProtocolError
	require.True(t, errors.As(err, &protocolErr))
	assert.Equal(t, "job-1", protocolErr.JobID)
}

func TestPoller_Wait_Failed(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{name: "with reason", status: Status{State: "failed", Error: "bad scan"}, want: "bad scan"},
		{name: "without reason", status: Status{State: "failed"}, want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poller, _ := newTestPoller(t, DefaultConfig(), &scriptedQuerier{statuses: []Status{{State: "pending"}, tt.status}})

			_, err := poller.Wait(context.Background(), "job-1")

			var protocolErr *errs.ProtocolError
			require.True(t, errors.As(err, &protocolErr))
			assert.Contains(t, protocolErr.Message, tt.want)
		})
	}
}

func TestPoller_Wait_TransportError(t *testing.T) {
	transportErr := errors.New("connection reset")
	querier := &scriptedQuerier{err: transportErr}
	poller, clock := newTestPoller(t, DefaultConfig(), querier)

	_, err := poller.Wait(context.Background(), "job-1")

	require.ErrorIs(t, err, transportErr)
	assert.Contains(t, err.Error(), "job-1")
	assert.Equal(t, 1, querier.calls)
	assert.Empty(t, clock.sleeps)
}

func TestPoller_Wait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller, _ := newTestPoller(t, DefaultConfig(), &scriptedQuerier{statuses: []Status{{State: "processing"}}})

	_, err := poller.Wait(ctx, "job-1")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoller_Wait_RealSleep(t *testing.T) {
	querier := &scriptedQuerier{statuses: []Status{{State: "processing"}, {State: "completed", DownloadURL: "u"}}}
	config := Config{MaxWait: time.Second, CheckInterval: 5 * time.Millisecond, MaxCheckInterval: 10 * time.Millisecond, BackoffFactor: 2}
	poller, err := New(config, querier, log.NewLogger())
	require.NoError(t, err)

	url, err := poller.Wait(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, "u", url)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{BackoffFactor: 0.5}, &scriptedQuerier{}, log.NewLogger())
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil, log.NewLogger())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Completed, Classify(Status{State: "completed"}))
	assert.Equal(t, Failed, Classify(Status{State: "failed"}))
	assert.Equal(t, Pending, Classify(Status{State: "pending"}))
	assert.Equal(t, Pending, Classify(Status{State: "processing"}))
	assert.Equal(t, Pending, Classify(Status{State: "something-new"}))
}
