package servicing

import "sync"

// =============================================================================
// BUSINESS CLOCK - Organization-wide business date
// =============================================================================

// BusinessClock exposes the current organization business date. The date is
// advanced externally once per day; the engine never reads wall-clock time
// for servicing decisions, so tests drive it deterministically.
type BusinessClock interface {
	BusinessDate() Date
}

// FixedClock is the standard BusinessClock: a shared date advanced by an
// explicit operation. Safe for concurrent readers.
type FixedClock struct {
	mu   sync.RWMutex
	date Date
}

func NewFixedClock(date Date) *FixedClock {
	return &FixedClock{date: date}
}

func (c *FixedClock) BusinessDate() Date {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.date
}

// AdvanceTo moves the business date forward. Moving backwards is ignored;
// the business date is monotonic.
func (c *FixedClock) AdvanceTo(date Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if date.After(c.date) {
		c.date = date
	}
}

func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = c.date.AddDays(n)
}
