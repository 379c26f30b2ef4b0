package session

import (
	"fmt"
	"sync"
	"time"
)

// MaxActivityEntries caps the activity log ring.
const MaxActivityEntries = 50

// ActivityEntry is one human-readable event line.
type ActivityEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// ActivityLog is a bounded newest-first ring of event lines for the
// operator dashboard.
type ActivityLog struct {
	mu      sync.Mutex
	entries []ActivityEntry
	now     func() time.Time
}

// NewActivityLog creates an empty activity log.
func NewActivityLog() *ActivityLog {
	return &ActivityLog{now: time.Now}
}

// SetClock overrides the time source. Test use only.
func (l *ActivityLog) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Logf prepends a formatted entry, evicting the oldest past the cap.
func (l *ActivityLog) Logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := ActivityEntry{Time: l.now(), Message: fmt.Sprintf(format, args...)}
	l.entries = append([]ActivityEntry{entry}, l.entries...)
	if len(l.entries) > MaxActivityEntries {
		l.entries = l.entries[:MaxActivityEntries]
	}
}

// Entries returns a copy of the log, newest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
