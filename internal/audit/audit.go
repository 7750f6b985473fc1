// Package audit implements the bounded, most-recent-first activity journal
// kept next to every managed collection.
package audit

import "time"

// MaxEntries is the number of entries a Log retains. Older entries are
// dropped on append.
const MaxEntries = 50

// DefaultRecent is how many entries are shown by default
const DefaultRecent = 5

// Entry is one human-readable action description
type Entry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an ordered journal, newest entry first
type Log []Entry

// Append returns a new log with e in front, truncated to MaxEntries.
// The receiver is not modified.
func (l Log) Append(e Entry) Log {
	n := len(l) + 1
	if n > MaxEntries {
		n = MaxEntries
	}

	out := make(Log, 0, n)
	out = append(out, e)
	out = append(out, l[:n-1]...)
	return out
}

// Bounded returns l cut to MaxEntries, never nil. A stored log may
// predate the cap or have been edited by hand.
func (l Log) Bounded() Log {
	if l == nil {
		return Log{}
	}
	if len(l) > MaxEntries {
		return l[:MaxEntries:MaxEntries]
	}
	return l
}

// Recent returns a copy of the n newest entries. A non-positive n yields
// DefaultRecent entries.
func (l Log) Recent(n int) Log {
	if n <= 0 {
		n = DefaultRecent
	}
	if n > len(l) {
		n = len(l)
	}

	out := make(Log, n)
	copy(out, l[:n])
	return out
}

// Latest returns the newest entry
func (l Log) Latest() (Entry, bool) {
	if len(l) == 0 {
		return Entry{}, false
	}
	return l[0], true
}
