package domain

import (
	"fmt"
	"strings"
	"sync"
)

// Category classifies a diagnostic entry.
type Category string

// Diagnostic categories. Others may be introduced by engines.
const (
	CategoryError   Category = "error"
	CategoryWarning Category = "warning"
	CategoryInfo    Category = "info"
)

// Entry is a single diagnostic message.
type Entry struct {
	Category Category   `json:"category"`
	Tag      string     `json:"tag,omitempty"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
	Facet    string     `json:"facet,omitempty"`
}

// String renders the entry without its tag.
func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", strings.ToUpper(string(e.Category)), e.Message)
}

// Log is an ordered, mergeable sequence of diagnostic entries. The zero
// value is ready to use and a Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLog returns a log seeded with the supplied entries.
func NewLog(entries ...Entry) *Log {
	l := &Log{}
	if len(entries) > 0 {
		l.entries = append(l.entries, entries...)
	}
	return l
}

var defaultLog = NewLog()

// DefaultLog returns the process-wide sink used when a caller supplies none.
// It accumulates until the embedding application reads or clears it.
func DefaultLog() *Log {
	return defaultLog
}

// Add appends entries in order.
func (l *Log) Add(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, entries...)
	l.mu.Unlock()
}

// Errorf appends an error entry.
func (l *Log) Errorf(tag, format string, args ...any) {
	l.Add(Entry{Category: CategoryError, Tag: tag, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning entry.
func (l *Log) Warnf(tag, format string, args ...any) {
	l.Add(Entry{Category: CategoryWarning, Tag: tag, Message: fmt.Sprintf(format, args...)})
}

// Infof appends an informational entry.
func (l *Log) Infof(tag, format string, args ...any) {
	l.Add(Entry{Category: CategoryInfo, Tag: tag, Message: fmt.Sprintf(format, args...)})
}

// Merge appends every entry of other to l and returns l. A nil or empty
// other is a no-op. Entries are never deduplicated.
func (l *Log) Merge(other *Log) *Log {
	if other == nil {
		return l
	}
	// snapshot first so merging a log into itself cannot deadlock
	l.Add(other.Entries()...)
	return l
}

// Merge appends from into into and returns into.
func Merge(into, from *Log) *Log {
	return into.Merge(from)
}

// Entries returns a copy of the entries in insertion order.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Count reports the number of entries in the category.
func (l *Log) Count(category Category) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Category == category {
			n++
		}
	}
	return n
}

// HasErrors reports whether any error entry is present.
func (l *Log) HasErrors() bool {
	return l.Count(CategoryError) > 0
}

// Clear discards all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Drain returns all entries and clears the log.
func (l *Log) Drain() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	return out
}

// Format renders the log one entry per line. When writeTags is set the tag
// prefixes each message. A positive maxEntries truncates the output and
// reports how many entries were omitted.
func (l *Log) Format(writeTags bool, maxEntries int) string {
	entries := l.Entries()
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if maxEntries > 0 && i >= maxEntries {
			fmt.Fprintf(&b, "... and %d more\n", len(entries)-maxEntries)
			break
		}
		if writeTags && e.Tag != "" {
			fmt.Fprintf(&b, "[%s] ", e.Tag)
		}
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// String renders the log with tags and no limit.
func (l *Log) String() string {
	return l.Format(true, 0)
}
