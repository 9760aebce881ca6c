package connmgr

import "testing"

func TestIsTransitionValid(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Drained, Activating, true},
		{Drained, Active, false},
		{Drained, Draining, false},
		{Activating, Active, true},
		{Activating, Drained, true},
		{Activating, Draining, false},
		{Active, Draining, true},
		{Active, Drained, false},
		{Draining, Active, true},
		{Draining, Drained, true},
		{Draining, Activating, false},
	}
	for _, c := range cases {
		if got := isTransitionValid(c.from, c.to); got != c.want {
			t.Errorf("isTransitionValid(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStateStrings(t *testing.T) {
	for s := Drained; s <= Draining; s++ {
		if s.String() == "unknown" {
			t.Errorf("state %d has no string form", s)
		}
	}
}
