package core

import (
	"fmt"
	"sync"
)

// CallBudget enforces a maximum number of model calls per invocation. It is
// shared by every context derived from one top-level run.
type CallBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallBudget creates a budget with a ceiling. A ceiling <= 0 is unbounded.
func NewCallBudget(max int) *CallBudget {
	return &CallBudget{max: max}
}

// Increment increases the call counter and returns ErrBudgetExceeded once the
// ceiling is passed.
func (b *CallBudget) Increment() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.max > 0 && b.count > b.max {
		return fmt.Errorf("%w: max %d", ErrBudgetExceeded, b.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (b *CallBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many calls are left before hitting the ceiling, or -1
// when unbounded.
func (b *CallBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return -1
	}

	return max(b.max-b.count, 0)
}
