package client

import (
	"context"
	"time"

	"httpcore/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Timeout selects the time budget of a single request. The zero value
// inherits the manager default; the other variants are explicit.
type Timeout struct {
	kind timeoutKind
	d    time.Duration
}

type timeoutKind uint8

const (
	timeoutInherit timeoutKind = iota
	timeoutNone
	timeoutExplicit
)

// TimeoutInherit uses the manager's default response timeout.
func TimeoutInherit() Timeout { return Timeout{kind: timeoutInherit} }

// TimeoutNone disables the time budget for the request.
func TimeoutNone() Timeout { return Timeout{kind: timeoutNone} }

// TimeoutAfter caps the whole request at d: connection acquisition,
// send, response head and every body read all share it.
func TimeoutAfter(d time.Duration) Timeout {
	return Timeout{kind: timeoutExplicit, d: d}
}

// resolve maps the variant to a concrete budget given the manager
// default. ok is false when the request runs without a budget.
func (t Timeout) resolve(managerDefault time.Duration) (d time.Duration, ok bool) {
	switch t.kind {
	case timeoutNone:
		return 0, false
	case timeoutExplicit:
		return t.d, true
	default:
		if managerDefault <= 0 {
			return 0, false
		}
		return managerDefault, true
	}
}

// Budget threads one deadline through every blocking operation of a
// request: each Run measures the elapsed time on its clock and shrinks
// the remainder, so a slow acquisition leaves less room for the reads
// that follow. A Budget is exposed on the Request so tests can
// substitute a mocked clock.
type Budget struct {
	clock clock.Clock

	remaining time.Duration
	limited   bool
}

// NewBudget creates a budget of d. A nil clk uses the wall clock.
func NewBudget(clk clock.Clock, d time.Duration) *Budget {
	if clk == nil {
		clk = clock.New()
	}
	return &Budget{clock: clk, remaining: d, limited: true}
}

func newUnlimitedBudget(clk clock.Clock) *Budget {
	if clk == nil {
		clk = clock.New()
	}
	return &Budget{clock: clk}
}

// Remaining reports the budget left. ok is false for unlimited budgets.
func (b *Budget) Remaining() (d time.Duration, ok bool) {
	return b.remaining, b.limited
}

// Deadline converts the remaining budget to an absolute point in time,
// suitable for a conn deadline. The zero time means no deadline.
func (b *Budget) Deadline() time.Time {
	if !b.limited {
		return time.Time{}
	}
	return b.clock.Now().Add(b.remaining)
}

// Run executes one blocking operation under the budget. op receives the
// remaining allowance (ok=false when unlimited) and must bound itself
// with it (a conn deadline, a context timeout). Afterwards the elapsed
// time is charged; an exhausted budget or a deadline-shaped failure
// surfaces as [ErrResponseTimeout].
func (b *Budget) Run(op func(remaining time.Duration, ok bool) error) error {
	if b.limited && b.remaining <= 0 {
		return ErrResponseTimeout
	}

	start := b.clock.Now()
	err := op(b.remaining, b.limited)

	if b.limited {
		b.remaining -= b.clock.Since(start)
	}

	if err != nil {
		if isDeadlineError(err) {
			return errors.Wrap(ErrResponseTimeout, err.Error())
		}
		return err
	}

	return nil
}

func isDeadlineError(err error) bool {
	return errors.Is(err, transport.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded)
}
