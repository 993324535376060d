package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/harvest"
	"github.com/raphaelgruber/catalog-harvester/internal/lock"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// recordingDelegate captures the response a handler gives a message.
type recordingDelegate struct {
	mu        sync.Mutex
	operation string
	delay     time.Duration
	touches   int
}

func (d *recordingDelegate) OnFinish(*nsq.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.operation = "finish"
}

func (d *recordingDelegate) OnRequeue(_ *nsq.Message, delay time.Duration, _ bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.operation = "requeue"
	d.delay = delay
}

func (d *recordingDelegate) OnTouch(*nsq.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touches++
}

func newMessage(t *testing.T, body []byte) (*nsq.Message, *recordingDelegate) {
	t.Helper()
	id := nsq.MessageID{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'A', 'B', 'C', 'D', 'E', 'F'}
	msg := nsq.NewMessage(id, body)
	d := &recordingDelegate{}
	msg.Delegate = d
	return msg, d
}

type fakeRunner struct {
	calls []string
	err   error
	wait  time.Duration
}

func (f *fakeRunner) RunSource(_ context.Context, id string) (*models.HarvestJob, error) {
	f.calls = append(f.calls, id)
	time.Sleep(f.wait)
	if f.err != nil {
		return nil, f.err
	}
	job := models.NewJob(id)
	job.Status = models.JobDone
	return job, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	body, err := encodeRequest(Request{SourceID: "src-1", RequestedAt: at})
	require.NoError(t, err)

	req, err := decodeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, "src-1", req.SourceID)
	assert.True(t, at.Equal(req.RequestedAt))

	_, err = decodeRequest([]byte(`{}`))
	assert.ErrorContains(t, err, "missing source_id")
	_, err = decodeRequest([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		operation string
		runs      int
	}{
		{name: "success", body: `{"source_id":"src-1"}`, operation: "finish", runs: 1},
		{name: "malformed", body: `{`, operation: "finish", runs: 0},
		{name: "inactive", body: `{"source_id":"src-1"}`, err: fmt.Errorf("src: %w", harvest.ErrSourceInactive), operation: "finish", runs: 1},
		{name: "missing source", body: `{"source_id":"src-1"}`, err: store.ErrNotFound, operation: "finish", runs: 1},
		{name: "already running", body: `{"source_id":"src-1"}`, err: harvest.ErrAlreadyRunning, operation: "requeue", runs: 1},
		{name: "locked", body: `{"source_id":"src-1"}`, err: lock.ErrLocked, operation: "requeue", runs: 1},
		{name: "interrupted", body: `{"source_id":"src-1"}`, err: fmt.Errorf("harvest: %w: %w", harvest.ErrInterrupted, context.Canceled), operation: "requeue", runs: 1},
		{name: "cancelled before run", body: `{"source_id":"src-1"}`, err: context.Canceled, operation: "requeue", runs: 1},
		{name: "store failure", body: `{"source_id":"src-1"}`, err: errors.New("connection reset"), operation: "requeue", runs: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			w := NewWorker(Config{RequeueDelay: 5 * time.Second}, runner, quietLogger())
			msg, d := newMessage(t, []byte(tt.body))

			require.NoError(t, w.HandleMessage(msg))
			assert.Equal(t, tt.operation, d.operation)
			assert.Len(t, runner.calls, tt.runs)
		})
	}
}

func TestHandleMessageRequeueDelay(t *testing.T) {
	w := NewWorker(Config{RequeueDelay: 5 * time.Second}, &fakeRunner{err: harvest.ErrAlreadyRunning}, quietLogger())
	msg, d := newMessage(t, []byte(`{"source_id":"src-1"}`))
	require.NoError(t, w.HandleMessage(msg))
	assert.Equal(t, 5*time.Second, d.delay)

	w = NewWorker(Config{RequeueDelay: 5 * time.Second}, &fakeRunner{err: harvest.ErrInterrupted}, quietLogger())
	msg, d = newMessage(t, []byte(`{"source_id":"src-1"}`))
	require.NoError(t, w.HandleMessage(msg))
	assert.Equal(t, 5*time.Second, d.delay, "interrupted runs wait before retrying")

	w = NewWorker(Config{}, &fakeRunner{err: errors.New("boom")}, quietLogger())
	msg, d = newMessage(t, []byte(`{"source_id":"src-1"}`))
	require.NoError(t, w.HandleMessage(msg))
	assert.Equal(t, time.Duration(-1), d.delay, "default backoff")
}

func TestHandleMessageTouchesLongRuns(t *testing.T) {
	w := NewWorker(Config{MsgTimeout: 20 * time.Millisecond}, &fakeRunner{wait: 60 * time.Millisecond}, quietLogger())
	msg, d := newMessage(t, []byte(`{"source_id":"src-1"}`))

	require.NoError(t, w.HandleMessage(msg))
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.GreaterOrEqual(t, d.touches, 1)
	assert.Equal(t, "finish", d.operation)
}

type fakeProducer struct {
	topic  string
	bodies [][]byte
	err    error
}

func (f *fakeProducer) Publish(topic string, body []byte) error {
	f.topic = topic
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeProducer) Stop() {}

func TestPublisherEnqueue(t *testing.T) {
	fp := &fakeProducer{}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := &Publisher{producer: fp, topic: "harvest", logger: quietLogger(), now: func() time.Time { return at }}

	require.NoError(t, p.Enqueue(context.Background(), "src-1"))
	assert.Equal(t, "harvest", fp.topic)
	require.Len(t, fp.bodies, 1)
	req, err := decodeRequest(fp.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, "src-1", req.SourceID)
	assert.True(t, at.Equal(req.RequestedAt))

	fp.err = errors.New("nsqd down")
	assert.ErrorContains(t, p.Enqueue(context.Background(), "src-1"), "publish to harvest")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Enqueue(ctx, "src-1"), context.Canceled)
}

func TestSlogLoggerLevels(t *testing.T) {
	var got []slog.Level
	h := &levelRecorder{levels: &got}
	l := slogLogger{slog.New(h)}

	require.NoError(t, l.Output(2, "INF    1 [harvest/harvester] connecting"))
	require.NoError(t, l.Output(2, "ERR    1 lost connection"))
	require.NoError(t, l.Output(2, "plain"))
	assert.Equal(t, []slog.Level{slog.LevelInfo, slog.LevelError, slog.LevelInfo}, got)
}

type levelRecorder struct {
	levels *[]slog.Level
}

func (h *levelRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *levelRecorder) Handle(_ context.Context, r slog.Record) error {
	*h.levels = append(*h.levels, r.Level)
	return nil
}

func (h *levelRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *levelRecorder) WithGroup(string) slog.Handler      { return h }
