package security

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

type trackerKey struct{}

// Tracker records whether a transaction wrote to the access models. While it
// is dirty, decisions are computed from the transaction's own rows and
// neither read from nor stored in the cache.
type Tracker struct {
	mu    sync.Mutex
	dirty bool
}

// Track returns a context carrying a new tracker for the transaction about
// to start. The caller flushes the filter after commit when the tracker is
// dirty.
func Track(ctx context.Context) (context.Context, *Tracker) {
	t := &Tracker{}
	return context.WithValue(ctx, trackerKey{}, t), t
}

func trackerFrom(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// Dirty reports whether the transaction wrote to an access model
func (t *Tracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// Reset clears the tracker before a retried attempt
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.dirty = false
	t.mu.Unlock()
}

func (t *Tracker) mark() {
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
}

// Changed marks the transaction of env when model is watched. Without a
// tracker the cache is flushed at once.
func (f *Filter) Changed(env schema.Env, model *schema.Model) {
	if f.cache == nil || !Watched(model.Name()) {
		return
	}
	if t := trackerFrom(env.Context()); t != nil {
		t.mark()
		return
	}
	if err := f.Flush(env.Context()); err != nil {
		f.logger.Warn("failed to flush access decisions", zap.Error(err))
	}
}

// bypass reports whether the cache must be skipped for ctx
func bypass(ctx context.Context) bool {
	t := trackerFrom(ctx)
	return t != nil && t.Dirty()
}
