package cache

import (
	"context"
	"time"

	"github.com/leonardcser/wikicache/internal/logger"
)

// Sweeper runs Manager.Sweep periodically.
type Sweeper struct {
	m     *Manager
	every time.Duration
}

func NewSweeper(m *Manager, every time.Duration) *Sweeper {
	if every <= 0 {
		every = time.Hour
	}
	return &Sweeper{m: m, every: every}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A failed sweep is left to the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if _, err := s.m.Sweep(); err != nil {
		logger.Warnf("sweep will retry in %s", s.every)
	}
}
