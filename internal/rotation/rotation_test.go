package rotation

import (
	"errors"
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestSequence(t *testing.T) {
	order := []int64{1, 2, 3}
	if got := Sequence(order, model.PhasePrimary); got[0] != 1 || got[2] != 3 {
		t.Errorf("primary = %v", got)
	}
	got := Sequence(order, model.PhaseSecondary)
	if got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Errorf("secondary = %v", got)
	}
	if order[0] != 1 {
		t.Error("Sequence must not modify the order")
	}
}

func TestNext(t *testing.T) {
	order := []int64{10, 20, 30, 40}
	skip := map[int64]bool{20: true}
	eligible := func(id int64) bool { return !skip[id] }

	tests := []struct {
		name      string
		phase     string
		from      int
		wantIndex int
		wantID    int64
		wantErr   error
	}{
		{"first primary", model.PhasePrimary, -1, 0, 10, nil},
		{"skips ineligible", model.PhasePrimary, 0, 2, 30, nil},
		{"last", model.PhasePrimary, 2, 3, 40, nil},
		{"round ends", model.PhasePrimary, 3, -1, 0, ErrRoundEnded},
		{"first secondary is last group", model.PhaseSecondary, -1, 0, 40, nil},
		{"secondary skips ineligible", model.PhaseSecondary, 1, 3, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, id, err := Next(order, tt.phase, tt.from, eligible)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if idx != tt.wantIndex || id != tt.wantID {
				t.Errorf("Next = (%d, %d), want (%d, %d)", idx, id, tt.wantIndex, tt.wantID)
			}
		})
	}
}

func TestNextNoneEligible(t *testing.T) {
	_, _, err := Next([]int64{1, 2}, model.PhasePrimary, -1, func(int64) bool { return false })
	if !errors.Is(err, ErrRoundEnded) {
		t.Errorf("err = %v", err)
	}
	_, _, err = Next(nil, model.PhasePrimary, -1, func(int64) bool { return true })
	if !errors.Is(err, ErrRoundEnded) {
		t.Errorf("empty order err = %v", err)
	}
}

// A turn only ever lands on a group that has allowance left and has not
// completed, whatever the usage looks like.
func TestNextOnlyLandsOnEligible(t *testing.T) {
	order := []int64{1, 2, 3, 4, 5}
	usage := map[int64]*model.TimePeriodUsage{
		1: {FamilyGroupID: 1, TimePeriodsUsed: 2, TimePeriodsAllowed: 2},
		2: {FamilyGroupID: 2, TimePeriodsUsed: 0, TimePeriodsAllowed: 2, TurnCompleted: true},
		3: {FamilyGroupID: 3, TimePeriodsUsed: 1, TimePeriodsAllowed: 2},
		5: {FamilyGroupID: 5, SecondaryPeriodsAllowed: 1},
	}
	for _, phase := range []string{model.PhasePrimary, model.PhaseSecondary} {
		eligible := Eligible(usage, phase)
		from := -1
		for {
			idx, id, err := Next(order, phase, from, eligible)
			if errors.Is(err, ErrRoundEnded) {
				break
			}
			u := usage[id]
			if u == nil || u.Completed(phase) || Remaining(u.Used(phase), u.Allowed(phase)) == 0 {
				t.Fatalf("%s: landed on ineligible group %d", phase, id)
			}
			if idx <= from {
				t.Fatalf("%s: cursor did not move forward", phase)
			}
			from = idx
		}
	}

	if _, id, _ := Next(order, model.PhasePrimary, -1, Eligible(usage, model.PhasePrimary)); id != 3 {
		t.Errorf("first primary = %d, want 3", id)
	}
	if _, id, _ := Next(order, model.PhaseSecondary, -1, Eligible(usage, model.PhaseSecondary)); id != 5 {
		t.Errorf("first secondary = %d, want 5", id)
	}
}

func TestRemaining(t *testing.T) {
	if Remaining(1, 3) != 2 || Remaining(3, 3) != 0 || Remaining(5, 3) != 0 {
		t.Error("Remaining mismatch")
	}
}

func TestNextYear(t *testing.T) {
	got := NextYear([]int64{1, 2, 3})
	if len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 1 {
		t.Errorf("NextYear = %v", got)
	}
	if NextYear(nil) != nil {
		t.Error("NextYear(nil) should be nil")
	}
}

func TestValidate(t *testing.T) {
	known := map[int64]bool{1: true, 2: true}
	if err := Validate([]int64{2, 1}, known); err != nil {
		t.Errorf("valid order: %v", err)
	}
	if err := Validate(nil, known); !errors.Is(err, ErrEmptyOrder) {
		t.Errorf("empty: %v", err)
	}
	if err := Validate([]int64{1, 1}, known); err == nil {
		t.Error("expected duplicate error")
	}
	if err := Validate([]int64{1, 9}, known); err == nil {
		t.Error("expected unknown group error")
	}
}
