// Package transcript merges ordered partial/final transcription results
// into one logical transcript.
//
// Results arrive from two independent asynchronous sources (the per-chunk
// submission path and the push channel) and may be reordered by the
// network. The reconciler orders by sequence number at read time, never
// by arrival order. A final result permanently owns its sequence slot;
// a partial is tentative and is superseded by a final for the same slot.
package transcript

import (
	"sort"
	"strings"
	"sync"
)

type entry struct {
	sequence int64
	text     string
	final    bool
}

// Reconciler maintains the ordered result log. Safe for concurrent
// append from multiple writers.
type Reconciler struct {
	mu      sync.RWMutex
	entries map[int64]entry
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{
		entries: make(map[int64]entry),
	}
}

// Append records a result. A final result overwrites whatever holds the
// slot; a partial only fills an empty slot or updates a prior partial.
// Appends targeting a slot already finalized are ignored: finals are
// never retracted.
func (r *Reconciler) Append(sequence int64, text string, final bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[sequence]; ok && cur.final {
		return
	}
	r.entries[sequence] = entry{sequence: sequence, text: text, final: final}
}

// Current returns the transcript so far: entry texts in sequence order,
// joined with single spaces, trimmed. Empty-text entries are skipped.
func (r *Reconciler) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].sequence < ordered[j].sequence
	})

	parts := make([]string, 0, len(ordered))
	for _, e := range ordered {
		if t := strings.TrimSpace(e.text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Len returns the number of occupied sequence slots.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear discards all recorded results.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[int64]entry)
}
