// Package settings holds the runtime player settings snapshot. The resolver
// reads it on every resolve, the API mutates it, so the store hands out
// copies under a lock rather than sharing the struct.
package settings

import (
	"sync"
	"time"

	"github.com/zyp1690/nodecast-tv/internal/config"
	"github.com/zyp1690/nodecast-tv/internal/models"
)

// Store is a concurrency-safe holder for the current settings.
type Store struct {
	mu      sync.RWMutex
	current models.Settings
}

// NewStore creates a store seeded from the player configuration.
func NewStore(cfg config.PlayerConfig) *Store {
	s := models.DefaultSettings()
	s.ForceRelay = cfg.ForceProxy
	s.ForceTranscode = cfg.ForceTranscode
	s.ForceRemux = cfg.ForceRemux
	if cfg.StreamFormat != "" {
		s.StreamFormat = cfg.StreamFormat
	}
	s.ArrowKeysChangeChannel = cfg.ArrowKeysChangeChannel
	if cfg.OverlayDuration > 0 {
		s.OverlayDuration = cfg.OverlayDuration
	}
	s.RememberVolume = cfg.RememberVolume
	return &Store{current: s}
}

// Get returns a copy of the current settings.
func (st *Store) Get() models.Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Set replaces the current settings.
func (st *Store) Set(s models.Settings) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = s
}

// RememberVolume stores the last volume when the remember flag is on.
func (st *Store) RememberLastVolume(volume float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current.RememberVolume {
		st.current.LastVolume = volume
	}
}

// OverlayDeadline returns when an overlay shown now should hide.
func (st *Store) OverlayDeadline(now time.Time) time.Time {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return now.Add(st.current.OverlayDuration)
}
