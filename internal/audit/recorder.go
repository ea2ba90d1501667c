// Package audit records before/after snapshots of every mutation. Writes
// are best effort: they never fail or delay the operation that caused them.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"assetdesk.org/internal/deadline"
	"assetdesk.org/internal/ids"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/obs"
)

const (
	DefaultBufferSize   = 1024
	DefaultWriteTimeout = 5 * time.Second
)

type job struct {
	ctx   context.Context
	entry Entry
}

// Recorder queues entries for a background writer. Close drains the queue.
type Recorder struct {
	store        Store
	writeTimeout time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	closed   bool
	queue    chan job
	overflow sync.WaitGroup
	done     chan struct{}
}

type RecorderOption func(*Recorder)

func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n >= 0 {
			r.queue = make(chan job, n)
		}
	}
}

func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:        store,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
		queue:        make(chan job, DefaultBufferSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Record queues ev for writing and returns immediately. Failures are
// logged and counted, never returned. After Close, entries are dropped;
// use Append to write synchronously.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	entry, err := r.entry(ev)
	if err != nil {
		obs.AuditWritten("error")
		logging.Ctx(ctx).Error().Err(err).Str("action", ev.Action).Msg("audit entry dropped")
		return
	}
	j := job{ctx: context.WithoutCancel(ctx), entry: entry}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		obs.AuditWritten("dropped")
		logging.Ctx(ctx).Warn().
			Str("action", entry.Action).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Msg("audit recorder closed, entry dropped")
		return
	}
	select {
	case r.queue <- j:
		obs.AuditQueueDepth(len(r.queue))
	default:
		// Queue full: write on a tracked goroutine rather than block the caller.
		r.overflow.Add(1)
		go func() {
			defer r.overflow.Done()
			_ = r.write(j.ctx, j.entry)
		}()
	}
}

// Append writes ev synchronously and reports the failure to the caller.
func (r *Recorder) Append(ctx context.Context, ev Event) error {
	entry, err := r.entry(ev)
	if err != nil {
		return err
	}
	return r.write(ctx, entry)
}

// Close stops accepting queued work and waits for pending writes, or for
// ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		<-r.done
		r.overflow.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit: drain interrupted with %d queued: %w", len(r.queue), ctx.Err())
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.queue {
		obs.AuditQueueDepth(len(r.queue))
		_ = r.write(j.ctx, j.entry)
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) error {
	out := deadline.Call(ctx, r.writeTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.AppendEntry(ctx, e)
	})
	if out.OK() {
		obs.AuditWritten("ok")
		return nil
	}
	obs.AuditWritten(out.Status.String())
	err := out.Err
	if err == nil {
		err = errors.New(out.Status.String())
	}
	logging.Ctx(ctx).Warn().
		Err(err).
		Str("audit_id", e.ID).
		Str("action", e.Action).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Msg("audit write failed")
	return fmt.Errorf("%w: %v", ErrWriteFailed, err)
}

func (r *Recorder) entry(ev Event) (Entry, error) {
	action := strings.ToUpper(strings.TrimSpace(ev.Action))
	if action == "" {
		return Entry{}, errors.New("audit: action is required")
	}
	oldValues, err := snapshot(ev.OldState)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encode old state: %w", err)
	}
	newValues, err := snapshot(ev.NewState)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encode new state: %w", err)
	}
	return Entry{
		ID:           ids.New(),
		UserID:       strings.TrimSpace(ev.ActorID),
		Action:       action,
		ResourceType: strings.TrimSpace(ev.ResourceType),
		ResourceID:   strings.TrimSpace(ev.ResourceID),
		OldValues:    oldValues,
		NewValues:    newValues,
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
		CreatedAt:    r.now().UTC(),
	}, nil
}

// snapshot serializes v to JSON text; nil (including typed nil pointers)
// yields a nil result, stored as NULL.
func snapshot(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	s := string(data)
	return &s, nil
}
