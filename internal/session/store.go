// Package session owns the active transaction map and the bounded ring of
// completed charging sessions.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/kabsujon-blip/newOCCP/internal/meter"
	"github.com/kabsujon-blip/newOCCP/internal/metrics"
)

// Finalization reasons. Exactly one of these wins per transaction.
const (
	ReasonStop             = "stop"
	ReasonDisconnect       = "disconnect"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonGhostZeroPower   = "ghost_zero_power"
)

// MaxCompleted caps the completed ring; the oldest entry is evicted first.
const MaxCompleted = 1000

// Session is one active charging transaction. Numeric fields are written
// only from meter samples.
type Session struct {
	TransactionID string    `json:"transaction_id"`
	StationID     string    `json:"station_id"`
	ConnectorID   int       `json:"connector_id"`
	StartTime     time.Time `json:"start_time"`
	PowerW        float64   `json:"power"`
	EnergyKWh     float64   `json:"energy"`
	VoltageV      float64   `json:"voltage"`
	CurrentA      float64   `json:"current"`
	TempC         float64   `json:"temperature"`
	MaxPowerW     float64   `json:"max_power"`
	LastPowerAt   time.Time `json:"-"`

	// zeroSince marks the first observation of zero power; cleared by any
	// non-zero sample. Used by the ghost sweep only.
	zeroSince time.Time

	voltageSum   float64
	voltageCount int
	currentSum   float64
	currentCount int
}

// Completed is the immutable snapshot taken at finalization.
type Completed struct {
	TransactionID string    `json:"transaction_id"`
	StationID     string    `json:"station_id"`
	ConnectorID   int       `json:"connector_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationMin   int       `json:"duration_min"`
	EnergyKWh     float64   `json:"energy"`
	MaxPowerW     float64   `json:"max_power"`
	AvgVoltageV   float64   `json:"avg_voltage"`
	AvgCurrentA   float64   `json:"avg_current"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
}

// Store is the process-wide session state. All operations are atomic.
type Store struct {
	mu        sync.Mutex
	active    map[string]*Session
	byConn    map[string]string // "station:connector" -> tx id
	completed []Completed       // newest first
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		active: make(map[string]*Session),
		byConn: make(map[string]string),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func connKey(stationID string, connectorID int) string {
	return fmt.Sprintf("%s:%d", stationID, connectorID)
}

// Open creates an active session. A session already occupying the same
// (station, connector) pair is finalized first so the pair stays unique.
func (s *Store) Open(txID, stationID string, connectorID int) Session {
	s.mu.Lock()
	key := connKey(stationID, connectorID)
	prevFinalized := false
	if prevTx, ok := s.byConn[key]; ok {
		_, prevFinalized = s.finalizeLocked(prevTx, ReasonStop, s.now(), nil)
	}
	sess := &Session{
		TransactionID: txID,
		StationID:     stationID,
		ConnectorID:   connectorID,
		StartTime:     s.now(),
	}
	s.active[txID] = sess
	s.byConn[key] = txID
	snapshot := *sess
	s.mu.Unlock()

	if prevFinalized {
		metrics.ActiveSessions.Dec()
		metrics.SessionsFinalized.WithLabelValues(ReasonStop).Inc()
	}
	metrics.ActiveSessions.Inc()
	return snapshot
}

// FindByTx returns a snapshot of the active session with the given id.
func (s *Store) FindByTx(txID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[txID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// FindByConnector returns a snapshot of the active session on the given
// station connector.
func (s *Store) FindByConnector(stationID string, connectorID int) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txID, ok := s.byConn[connKey(stationID, connectorID)]
	if !ok {
		return Session{}, false
	}
	sess, ok := s.active[txID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// UpdateMeter applies a parsed reading to the session. Non-zero power
// refreshes the last-power timestamp and clears the ghost marker.
func (s *Store) UpdateMeter(txID string, r meter.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[txID]
	if !ok {
		return false
	}
	sess.PowerW = r.PowerW
	sess.EnergyKWh = r.EnergyKWh
	sess.VoltageV = r.VoltageV
	sess.CurrentA = r.CurrentA
	sess.TempC = r.TempC
	if r.PowerW > sess.MaxPowerW {
		sess.MaxPowerW = r.PowerW
	}
	if r.PowerW > 0 {
		sess.LastPowerAt = s.now()
		sess.zeroSince = time.Time{}
	}
	if r.VoltageV > 0 {
		sess.voltageSum += r.VoltageV
		sess.voltageCount++
	}
	if r.CurrentA > 0 {
		sess.currentSum += r.CurrentA
		sess.currentCount++
	}
	return true
}

// Finalize removes the session from the active map and prepends its snapshot
// to the completed ring. Exactly one caller succeeds per transaction id;
// later callers get ok=false. finalEnergy, when non-nil, overrides the last
// observed energy (the StopTransaction meterStop path).
func (s *Store) Finalize(txID, reason string, endTime time.Time, finalEnergy *float64) (Completed, bool) {
	s.mu.Lock()
	done, ok := s.finalizeLocked(txID, reason, endTime, finalEnergy)
	s.mu.Unlock()
	if ok {
		metrics.ActiveSessions.Dec()
		metrics.SessionsFinalized.WithLabelValues(reason).Inc()
	}
	return done, ok
}

func (s *Store) finalizeLocked(txID, reason string, endTime time.Time, finalEnergy *float64) (Completed, bool) {
	sess, ok := s.active[txID]
	if !ok {
		return Completed{}, false
	}
	delete(s.active, txID)
	key := connKey(sess.StationID, sess.ConnectorID)
	if s.byConn[key] == txID {
		delete(s.byConn, key)
	}

	if endTime.Before(sess.StartTime) {
		endTime = sess.StartTime
	}
	done := Completed{
		TransactionID: sess.TransactionID,
		StationID:     sess.StationID,
		ConnectorID:   sess.ConnectorID,
		StartTime:     sess.StartTime,
		EndTime:       endTime,
		DurationMin:   int(endTime.Sub(sess.StartTime) / time.Minute),
		EnergyKWh:     sess.EnergyKWh,
		MaxPowerW:     sess.MaxPowerW,
		Status:        "completed",
		Reason:        reason,
	}
	if finalEnergy != nil {
		done.EnergyKWh = *finalEnergy
	}
	if sess.voltageCount > 0 {
		done.AvgVoltageV = sess.voltageSum / float64(sess.voltageCount)
	}
	if sess.currentCount > 0 {
		done.AvgCurrentA = sess.currentSum / float64(sess.currentCount)
	}

	s.completed = append([]Completed{done}, s.completed...)
	if len(s.completed) > MaxCompleted {
		s.completed = s.completed[:MaxCompleted]
	}
	return done, true
}

// ActiveAll returns snapshots of every active session.
func (s *Store) ActiveAll() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.active))
	for _, sess := range s.active {
		out = append(out, *sess)
	}
	return out
}

// ActiveForStation returns snapshots of the station's active sessions.
func (s *Store) ActiveForStation(stationID string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, sess := range s.active {
		if sess.StationID == stationID {
			out = append(out, *sess)
		}
	}
	return out
}

// ActiveCount returns the number of active sessions.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// CompletedAll returns a copy of the completed ring, newest first.
func (s *Store) CompletedAll() []Completed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Completed, len(s.completed))
	copy(out, s.completed)
	return out
}

// GhostCandidates marks sessions observed at zero power and returns the ids
// of those that have stayed at zero longer than threshold. Any non-zero
// sample in between clears the marker via UpdateMeter.
func (s *Store) GhostCandidates(threshold time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var ids []string
	for txID, sess := range s.active {
		if sess.PowerW != 0 {
			sess.zeroSince = time.Time{}
			continue
		}
		if sess.zeroSince.IsZero() {
			sess.zeroSince = now
			continue
		}
		if now.Sub(sess.zeroSince) > threshold {
			ids = append(ids, txID)
		}
	}
	return ids
}
