// Package registry maintains the set of broadcast destinations.
//
// The set lives in the durable store's channels collection; every mutation
// runs under the store's channel lock, so the no-duplicates invariant holds
// across concurrent request handlers and the dispatcher's auto-removal.
package registry

import (
	"context"

	"signalbot/internal/store"
	logx "signalbot/pkg/logx"
)

type Registry struct {
	st  store.Store
	log logx.Logger
}

func New(st store.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{st: st, log: log}
}

// Add registers a destination. Returns false (and persists nothing) when it
// is already present.
func (r *Registry) Add(ctx context.Context, id string) (bool, error) {
	added := false
	err := r.st.UpdateChannels(ctx, func(channels []string) ([]string, bool) {
		for _, ch := range channels {
			if ch == id {
				return channels, false
			}
		}
		added = true
		return append(channels, id), true
	})
	if err != nil {
		return false, err
	}
	if added {
		r.log.Info("channel added", logx.String("channel", id))
	}
	return added, nil
}

// Remove deregisters a destination. Removing an absent destination is a
// no-op reported as false.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	removed := false
	err := r.st.UpdateChannels(ctx, func(channels []string) ([]string, bool) {
		n := 0
		for _, ch := range channels {
			if ch == id {
				removed = true
				continue
			}
			channels[n] = ch
			n++
		}
		if !removed {
			return channels, false
		}
		return channels[:n], true
	})
	if err != nil {
		return false, err
	}
	if removed {
		r.log.Info("channel removed", logx.String("channel", id))
	}
	return removed, nil
}

// List returns all destinations in insertion order.
func (r *Registry) List(ctx context.Context) []string {
	return r.st.Channels(ctx)
}
