package engine

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"shiftledger/internal/domain"
)

const cacheSize = 256

// Cache keys are comparable structs rather than joined strings, so resident
// ids may contain any character without colliding with another key.
type completionCacheKey struct {
	ResidentID string
	Day        string
}

type entryCacheKey struct {
	ResidentID   string
	Shift        string
	Day          string
	HandoverOnly bool
}

// caches are the facade-owned read caches. Invalidation is explicit and
// keyed the same way reads are: resident+day for completions, the full
// filter tuple for journal listings.
type caches struct {
	completions *lru.Cache[completionCacheKey, []domain.CompletionEvent]
	entries     *lru.Cache[entryCacheKey, []domain.JournalEntry]
}

func newCaches() *caches {
	completions, _ := lru.New[completionCacheKey, []domain.CompletionEvent](cacheSize)
	entries, _ := lru.New[entryCacheKey, []domain.JournalEntry](cacheSize)
	return &caches{completions: completions, entries: entries}
}

func completionKey(residentID, day string) completionCacheKey {
	return completionCacheKey{ResidentID: residentID, Day: day}
}

func entryKey(f EntryFilters) entryCacheKey {
	return entryCacheKey{ResidentID: f.ResidentID, Shift: f.Shift, Day: f.Day, HandoverOnly: f.HandoverOnly}
}

func (c *caches) invalidateCompletions(residentID, day string) {
	c.completions.Remove(completionKey(residentID, day))
}

// invalidateEntries drops every cached journal listing for the given day.
// Listing keys always carry a resolved day.
func (c *caches) invalidateEntries(day string) {
	for _, key := range c.entries.Keys() {
		if key.Day == day {
			c.entries.Remove(key)
		}
	}
}

// copyEntries copies entries so callers never hold slices or pointers into
// cached records. CompletionEvent carries only value fields, so the plain
// slice copy in CompletionsFor is already enough there.
func copyEntries(src []domain.JournalEntry) []domain.JournalEntry {
	out := make([]domain.JournalEntry, len(src))
	for i, entry := range src {
		if entry.Tags != nil {
			entry.Tags = append([]string(nil), entry.Tags...)
		}
		if entry.ResidentID != nil {
			v := *entry.ResidentID
			entry.ResidentID = &v
		}
		if entry.AudioURL != nil {
			v := *entry.AudioURL
			entry.AudioURL = &v
		}
		out[i] = entry
	}
	return out
}
