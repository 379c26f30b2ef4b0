// Package registry tracks connected charge points.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Station status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Conn is the writable transport handle a station record owns while online.
type Conn interface {
	Close() error
}

// Station is one charge point record. Identity fields stay "Unknown" until
// the station sends BootNotification.
type Station struct {
	ID            string    `json:"id"`
	Conn          Conn      `json:"-"`
	ConnectionID  string    `json:"connection_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	Status        string    `json:"status"`
	Vendor        string    `json:"vendor"`
	Model         string    `json:"model"`
	Firmware      string    `json:"firmware"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Registry is the process-wide station map. All operations are atomic.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]*Station
	now      func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		stations: make(map[string]*Station),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Register inserts or replaces the record for id. A replaced record's
// connection is closed so its receive loop can run disconnect cleanup.
// Returns a snapshot of the fresh record; its ConnectionID distinguishes
// this connection from any it replaced.
func (r *Registry) Register(id string, conn Conn) Station {
	r.mu.Lock()
	var prev Conn
	if old, ok := r.stations[id]; ok && old.Conn != nil {
		prev = old.Conn
	}
	now := r.now()
	st := &Station{
		ID:            id,
		Conn:          conn,
		ConnectionID:  uuid.NewString(),
		ConnectedAt:   now,
		Status:        StatusOnline,
		Vendor:        "Unknown",
		Model:         "Unknown",
		Firmware:      "Unknown",
		LastHeartbeat: now,
	}
	r.stations[id] = st
	snapshot := *st
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return snapshot
}

// UpdateBoot fills the device identity from BootNotification and marks the
// station online.
func (r *Registry) UpdateBoot(id, vendor, model, firmware string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok {
		return false
	}
	if vendor != "" {
		st.Vendor = vendor
	}
	if model != "" {
		st.Model = model
	}
	if firmware != "" {
		st.Firmware = firmware
	}
	st.Status = StatusOnline
	st.LastHeartbeat = r.now()
	return true
}

// Touch refreshes the heartbeat timestamp and marks the station online.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok {
		return false
	}
	st.LastHeartbeat = r.now()
	st.Status = StatusOnline
	return true
}

// MarkOffline flips the station to offline. The record is kept for display;
// only re-registration removes it.
func (r *Registry) MarkOffline(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok {
		return false
	}
	st.Status = StatusOffline
	st.Conn = nil
	return true
}

// MarkOfflineIf flips the station to offline only while connectionID still
// owns the record. A closing connection that has already been replaced by a
// reconnect must not touch the replacement's state.
func (r *Registry) MarkOfflineIf(id, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stations[id]
	if !ok || st.ConnectionID != connectionID {
		return false
	}
	st.Status = StatusOffline
	st.Conn = nil
	return true
}

// Lookup returns a snapshot copy of the record for id.
func (r *Registry) Lookup(id string) (Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	if !ok {
		return Station{}, false
	}
	return *st, true
}

// SnapshotAll returns copies of every record for dashboards and APIs.
func (r *Registry) SnapshotAll() []Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Station, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, *st)
	}
	return out
}

// Counts returns the total and online station counts.
func (r *Registry) Counts() (total, online int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total = len(r.stations)
	for _, st := range r.stations {
		if st.Status == StatusOnline {
			online++
		}
	}
	return total, online
}

// StaleOnline returns the ids of online stations whose last heartbeat is
// older than timeout. The sweep acts on the returned ids, not on interior
// references.
func (r *Registry) StaleOnline(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var ids []string
	for id, st := range r.stations {
		if st.Status == StatusOnline && now.Sub(st.LastHeartbeat) > timeout {
			ids = append(ids, id)
		}
	}
	return ids
}
