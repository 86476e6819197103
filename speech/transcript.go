package speech

import (
	"strings"
	"sync"
)

// Merge appends candidate to committed unless committed already ends
// with or contains candidate as an exact (code-point, case-sensitive)
// substring, in which case committed is returned unchanged. This is the
// dedup heuristic for backends that redundantly resend finalized text.
// It is deliberately imprecise: genuinely new text that repeats an
// earlier phrase verbatim is suppressed, and a re-send differing only
// in case is treated as new.
func Merge(committed, candidate string) string {
	if committed == "" {
		return candidate
	}
	if candidate == "" {
		return committed
	}
	if strings.HasSuffix(committed, candidate) || strings.Contains(committed, candidate) {
		return committed
	}
	return committed + " " + candidate
}

// Accumulator reconciles incremental partial results with periodically
// committed transcripts into one growing text. All methods are safe for
// concurrent use.
type Accumulator struct {
	mu        sync.Mutex
	committed string
	partial   string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// SetPartial replaces the current not-yet-committed interim text.
func (a *Accumulator) SetPartial(text string) {
	a.mu.Lock()
	a.partial = text
	a.mu.Unlock()
}

// AppendDelta extends the current interim text with an incremental
// fragment, as delivered by delta-style streaming backends.
func (a *Accumulator) AppendDelta(delta string) {
	a.mu.Lock()
	a.partial += delta
	a.mu.Unlock()
}

// Commit folds a backend-finalized segment into the committed text via
// the Merge heuristic and clears the interim text.
func (a *Accumulator) Commit(candidate string) {
	a.mu.Lock()
	a.committed = Merge(a.committed, strings.TrimSpace(candidate))
	a.partial = ""
	a.mu.Unlock()
}

// Committed returns the committed text on its own.
func (a *Accumulator) Committed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// Partial returns the interim text on its own.
func (a *Accumulator) Partial() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.partial
}

// Combined returns the display text: committed and interim joined by a
// single space, omitting whichever side is empty.
func (a *Accumulator) Combined() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.combinedLocked()
}

func (a *Accumulator) combinedLocked() string {
	switch {
	case a.committed == "":
		return strings.TrimSpace(a.partial)
	case a.partial == "":
		return strings.TrimSpace(a.committed)
	}
	return strings.TrimSpace(a.committed + " " + a.partial)
}

// Flush folds any remaining interim text into the committed text and
// returns the full transcript, leaving the accumulator empty. Streaming
// transports do not guarantee a trailing commit before disconnection,
// so the stop path must call this rather than read Committed.
func (a *Accumulator) Flush() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := a.combinedLocked()
	a.committed = ""
	a.partial = ""
	return text
}

// Reset discards all accumulated text.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.committed = ""
	a.partial = ""
	a.mu.Unlock()
}
