// Package rotation decides which family group holds the selection turn.
//
// A rotation order lists family group ids. The primary phase walks the order
// front to back, the secondary phase walks it back to front. A position in a
// phase is an index into Sequence(order, phase); -1 means "before the first
// group".
package rotation

import (
	"errors"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

var (
	// ErrRoundEnded means no group after the cursor can take a turn.
	ErrRoundEnded = errors.New("selection round ended")
	ErrEmptyOrder = errors.New("rotation order is empty")
)

// Sequence returns the order in which groups take turns in a phase.
func Sequence(order []int64, phase string) []int64 {
	seq := make([]int64, len(order))
	if phase == model.PhaseSecondary {
		for i, id := range order {
			seq[len(order)-1-i] = id
		}
		return seq
	}
	copy(seq, order)
	return seq
}

// Next returns the position and id of the first group after fromIndex, in
// phase order, for which eligible holds. It returns ErrRoundEnded when no
// such group exists.
func Next(order []int64, phase string, fromIndex int, eligible func(familyGroupID int64) bool) (int, int64, error) {
	seq := Sequence(order, phase)
	if fromIndex < -1 {
		fromIndex = -1
	}
	for i := fromIndex + 1; i < len(seq); i++ {
		if eligible(seq[i]) {
			return i, seq[i], nil
		}
	}
	return -1, 0, ErrRoundEnded
}

// Remaining returns how many periods are left of an allowance.
func Remaining(used, allowed int) int {
	if used >= allowed {
		return 0
	}
	return allowed - used
}

// Eligible builds the eligibility predicate for a phase from usage rows: a
// group may take a turn when it has not completed the phase and has periods
// left. Groups without a usage row are not eligible.
func Eligible(usage map[int64]*model.TimePeriodUsage, phase string) func(int64) bool {
	return func(id int64) bool {
		u, ok := usage[id]
		if !ok {
			return false
		}
		return !u.Completed(phase) && Remaining(u.Used(phase), u.Allowed(phase)) > 0
	}
}

// NextYear rotates the order left by one: this year's first group goes last.
func NextYear(order []int64) []int64 {
	if len(order) == 0 {
		return nil
	}
	out := make([]int64, 0, len(order))
	out = append(out, order[1:]...)
	return append(out, order[0])
}

// Validate checks that order is non-empty, has no duplicates and names only
// groups in known.
func Validate(order []int64, known map[int64]bool) error {
	if len(order) == 0 {
		return ErrEmptyOrder
	}
	seen := make(map[int64]bool, len(order))
	for _, id := range order {
		if seen[id] {
			return fmt.Errorf("family group %d appears more than once", id)
		}
		if !known[id] {
			return fmt.Errorf("family group %d does not belong to this organization", id)
		}
		seen[id] = true
	}
	return nil
}
