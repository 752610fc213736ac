package security

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/cache"
	"github.com/conduit-lang/objectserver/internal/orm/schema"
)

// Flush drops every cached decision
func (f *Filter) Flush(ctx context.Context) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Clear(ctx)
}

// Close releases the decision cache
func (f *Filter) Close() error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Close()
}

// cachedBool returns the cached decision under key, computing and storing
// it on a miss. Cache failures fall back to compute. Transactions with
// uncommitted access writes always compute.
func (f *Filter) cachedBool(env schema.Env, key string, compute func() (bool, error)) (bool, error) {
	if raw, ok := f.lookup(env.Context(), key); ok {
		return string(raw) == "1", nil
	}
	v, err := compute()
	if err != nil {
		return false, err
	}
	raw := []byte("0")
	if v {
		raw = []byte("1")
	}
	f.store(env.Context(), key, raw)
	return v, nil
}

// cachedStrings is cachedBool for name lists
func (f *Filter) cachedStrings(env schema.Env, key string, compute func() ([]string, error)) ([]string, error) {
	if raw, ok := f.lookup(env.Context(), key); ok {
		var names []string
		if err := json.Unmarshal(raw, &names); err == nil {
			return names, nil
		}
	}
	names, err := compute()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(names); err == nil {
		f.store(env.Context(), key, raw)
	}
	return names, nil
}

func (f *Filter) lookup(ctx context.Context, key string) ([]byte, bool) {
	if f.cache == nil || bypass(ctx) {
		return nil, false
	}
	raw, err := f.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			f.logger.Warn("decision cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return raw, true
}

func (f *Filter) store(ctx context.Context, key string, raw []byte) {
	if f.cache == nil || bypass(ctx) {
		return
	}
	if err := f.cache.Set(ctx, key, raw, f.ttl); err != nil {
		f.logger.Warn("decision cache write failed", zap.String("key", key), zap.Error(err))
	}
}
