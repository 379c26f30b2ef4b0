// Package liveness detects stations that disappear without a clean close
// and sessions that keep running after charging has stopped.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/config"
	"github.com/kabsujon-blip/newOCCP/internal/engine"
	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

// Supervisor runs the heartbeat-timeout and ghost-zero-power sweeps.
type Supervisor struct {
	cfg      config.LivenessConfig
	registry *registry.Registry
	store    *session.Store
	engine   *engine.Engine
	activity *session.ActivityLog

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a supervisor. Start launches the sweeps.
func New(cfg config.LivenessConfig, reg *registry.Registry, store *session.Store, eng *engine.Engine, activity *session.ActivityLog) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:      cfg,
		registry: reg,
		store:    store,
		engine:   eng,
		activity: activity,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches both periodic sweeps.
func (s *Supervisor) Start() {
	s.wg.Add(2)
	go s.run(s.cfg.HeartbeatSweepInterval, s.HeartbeatSweep)
	go s.run(s.cfg.GhostSweepInterval, s.GhostSweep)
	log.Info().
		Dur("heartbeat_interval", s.cfg.HeartbeatSweepInterval).
		Dur("ghost_interval", s.cfg.GhostSweepInterval).
		Msg("Liveness supervisor started")
}

// Stop cancels the sweeps and waits for them to exit.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) run(interval time.Duration, sweep func() int) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// HeartbeatSweep marks silent stations offline and finalizes their sessions.
// Returns the number of stations timed out.
func (s *Supervisor) HeartbeatSweep() int {
	ids := s.registry.StaleOnline(s.cfg.HeartbeatTimeout)
	for _, id := range ids {
		s.registry.MarkOffline(id)
		finalized := s.engine.FinalizeStation(id, session.ReasonHeartbeatTimeout)
		s.activity.Logf("Station %s heartbeat timeout, %d session(s) closed", id, finalized)
		log.Warn().
			Str("station_id", id).
			Int("finalized", finalized).
			Msg("Station heartbeat timed out")
	}
	return len(ids)
}

// GhostSweep finalizes sessions that have drawn zero power for longer than
// the configured threshold.
func (s *Supervisor) GhostSweep() int {
	finalized := 0
	for _, txID := range s.store.GhostCandidates(s.cfg.ZeroPowerTimeout) {
		if _, ok := s.engine.FinalizeSession(txID, session.ReasonGhostZeroPower, nil); ok {
			finalized++
		}
	}
	return finalized
}
