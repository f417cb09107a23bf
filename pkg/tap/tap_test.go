package tap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNextStateTable(t *testing.T) {
	type transition struct {
		start State
		tms   bool
		end   State
	}

	cases := []transition{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2DR, false, StateShiftDR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
		{StateUpdateIR, false, StateRunTestIdle},
		{StateUpdateDR, true, StateSelectDRScan},
	}

	for _, tc := range cases {
		got := NextState(tc.start, tc.tms)
		if got != tc.end {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tc.start, tc.tms, got, tc.end)
		}
	}
}

func TestNextStateIsTotal(t *testing.T) {
	for s := State(0); s < NumStates; s++ {
		for _, tms := range []bool{false, true} {
			next := NextState(s, tms)
			if !next.Valid() {
				t.Fatalf("NextState(%s, %v) = %d, not a valid state", s, tms, next)
			}
			if again := NextState(s, tms); again != next {
				t.Fatalf("NextState(%s, %v) not deterministic: %s then %s", s, tms, next, again)
			}
		}
	}
}

func TestTMSHighReachesResetWithinSix(t *testing.T) {
	for s := State(0); s < NumStates; s++ {
		cur := s
		steps := 0
		for cur != StateTestLogicReset {
			cur = NextState(cur, true)
			steps++
			if steps > 6 {
				t.Fatalf("state %s did not reach Test-Logic-Reset within 6 TMS=1 clocks", s)
			}
		}
	}
}

func TestControllerAdvanceReportsChange(t *testing.T) {
	c := NewController(StateRunTestIdle)
	for i := 0; i < 5; i++ {
		if c.Advance(false) {
			t.Fatalf("Advance(false) from Run-Test/Idle reported a change on clock %d", i)
		}
	}
	if !c.Advance(true) {
		t.Fatalf("Advance(true) from Run-Test/Idle did not report a change")
	}
	if c.State() != StateSelectDRScan {
		t.Fatalf("State() = %s, want %s", c.State(), StateSelectDRScan)
	}

	c.Set(StateTestLogicReset)
	if c.Advance(true) {
		t.Fatalf("Advance(true) in Test-Logic-Reset reported a change")
	}
}

func TestStateNames(t *testing.T) {
	cases := []struct {
		state State
		long  string
		short string
	}{
		{StateTestLogicReset, "Test-Logic-Reset", "TstLogRst"},
		{StateRunTestIdle, "Run-Test/Idle", "RunTstIdl"},
		{StateShiftDR, "Shift-DR", "ShDR"},
		{StateUpdateIR, "Update-IR", "UpdIR"},
	}
	for _, tc := range cases {
		if got := tc.state.LongName(); got != tc.long {
			t.Errorf("%s.LongName() = %q, want %q", tc.state, got, tc.long)
		}
		if got := tc.state.ShortName(); got != tc.short {
			t.Errorf("%s.ShortName() = %q, want %q", tc.state, got, tc.short)
		}
	}
	if got := State(42).LongName(); got != "<undefined>" {
		t.Errorf("State(42).LongName() = %q, want <undefined>", got)
	}
}

func TestParseState(t *testing.T) {
	for _, name := range []string{"ShiftIR", "Shift-IR", "shir", "SHIFT-IR"} {
		s, err := ParseState(name)
		if err != nil {
			t.Fatalf("ParseState(%q) returned error: %v", name, err)
		}
		if s != StateShiftIR {
			t.Fatalf("ParseState(%q) = %s, want %s", name, s, StateShiftIR)
		}
	}
	if _, err := ParseState("Shift-XR"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestResetClocksReachReset(t *testing.T) {
	for st := State(0); st < NumStates; st++ {
		c := NewController(st)
		for i := 0; i < ResetClocks; i++ {
			c.Advance(true)
		}
		if c.State() != StateTestLogicReset {
			t.Fatalf("%d TMS-high clocks from %s end in %s", ResetClocks, st, c.State())
		}
	}
}

func TestPathToProducesExpectedPattern(t *testing.T) {
	c := NewController(StateRunTestIdle)

	path, err := c.PathTo(StateShiftIR)
	if err != nil {
		t.Fatalf("PathTo returned error: %v", err)
	}
	if diff := cmp.Diff([]bool{true, true, false, false}, path); diff != "" {
		t.Fatalf("path mismatch (-want +got):\n%s", diff)
	}
	if c.State() != StateRunTestIdle {
		t.Fatalf("PathTo moved the controller to %s", c.State())
	}

	if path, err := c.PathTo(StateRunTestIdle); err != nil || len(path) != 0 {
		t.Fatalf("PathTo current state = %v, %v; want empty path", path, err)
	}
}

func TestPathReachesEveryState(t *testing.T) {
	for from := State(0); from < NumStates; from++ {
		for to := State(0); to < NumStates; to++ {
			path, err := Path(from, to)
			if err != nil {
				t.Fatalf("Path(%s, %s) returned error: %v", from, to, err)
			}
			if len(path) > 8 {
				t.Fatalf("Path(%s, %s) takes %d clocks", from, to, len(path))
			}
			c := NewController(from)
			for _, tms := range path {
				c.Advance(tms)
			}
			if c.State() != to {
				t.Fatalf("Path(%s, %s) = %v ends in %s", from, to, path, c.State())
			}
		}
	}
	if _, err := Path(NumStates, StateRunTestIdle); err == nil {
		t.Fatalf("Path from an invalid state returned nil error")
	}
}
