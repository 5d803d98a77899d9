package lifecycle

import "testing"

func TestNextMatchesTransitionTable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		cur     RunState
		paused  bool
		hasPace bool
		want    RunState
	}{
		{Running, true, true, Paused},
		{Running, true, false, Paused},
		{Running, false, true, Sleeping},
		{Running, false, false, Running},
		{Paused, true, true, Paused},
		{Paused, true, false, Paused},
		{Paused, false, true, Running},
		{Paused, false, false, Running},
		{Sleeping, true, true, Paused},
		{Sleeping, true, false, Paused},
		{Sleeping, false, true, Running},
		{Sleeping, false, false, Running},
	}
	for _, tc := range cases {
		if got := Next(tc.cur, tc.paused, tc.hasPace); got != tc.want {
			t.Errorf("Next(%s, paused=%v, pace=%v) = %s, want %s", tc.cur, tc.paused, tc.hasPace, got, tc.want)
		}
	}
}

func TestRunStateString(t *testing.T) {
	t.Parallel()
	for s, want := range map[RunState]string{Paused: "paused", Running: "running", Sleeping: "sleeping", RunState(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
