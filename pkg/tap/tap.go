package tap

import (
	"fmt"
	"slices"
	"strings"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR
)

// NumStates is the number of TAP controller states.
const NumStates = 16

type stateNames struct {
	ident string
	long  string
	short string
}

var names = [NumStates]stateNames{
	StateTestLogicReset: {"TestLogicReset", "Test-Logic-Reset", "TstLogRst"},
	StateRunTestIdle:    {"RunTestIdle", "Run-Test/Idle", "RunTstIdl"},
	StateSelectDRScan:   {"SelectDRScan", "Select-DR-Scan", "SelDRScn"},
	StateCaptureDR:      {"CaptureDR", "Capture-DR", "CapDR"},
	StateShiftDR:        {"ShiftDR", "Shift-DR", "ShDR"},
	StateExit1DR:        {"Exit1DR", "Exit1-DR", "Ex1DR"},
	StatePauseDR:        {"PauseDR", "Pause-DR", "PsDR"},
	StateExit2DR:        {"Exit2DR", "Exit2-DR", "Ex2DR"},
	StateUpdateDR:       {"UpdateDR", "Update-DR", "UpdDR"},
	StateSelectIRScan:   {"SelectIRScan", "Select-IR-Scan", "SelIRScn"},
	StateCaptureIR:      {"CaptureIR", "Capture-IR", "CapIR"},
	StateShiftIR:        {"ShiftIR", "Shift-IR", "ShIR"},
	StateExit1IR:        {"Exit1IR", "Exit1-IR", "Ex1IR"},
	StatePauseIR:        {"PauseIR", "Pause-IR", "PsIR"},
	StateExit2IR:        {"Exit2IR", "Exit2-IR", "Ex2IR"},
	StateUpdateIR:       {"UpdateIR", "Update-IR", "UpdIR"},
}

// Valid reports whether s is one of the 16 TAP states.
func (s State) Valid() bool {
	return s < NumStates
}

func (s State) String() string {
	if s.Valid() {
		return names[s].ident
	}
	return fmt.Sprintf("State(%d)", s)
}

// LongName returns the descriptive name used in exports, e.g. "Shift-DR".
func (s State) LongName() string {
	if s.Valid() {
		return names[s].long
	}
	return "<undefined>"
}

// ShortName returns the abbreviated name used where display space is tight.
func (s State) ShortName() string {
	if s.Valid() {
		return names[s].short
	}
	return "<undef>"
}

// IsShift reports whether bits are exchanged on TDI/TDO in this state.
func (s State) IsShift() bool {
	return s == StateShiftIR || s == StateShiftDR
}

// ParseState accepts the identifier ("ShiftDR"), long ("Shift-DR") or short
// ("ShDR") name of a state, case-insensitively.
func ParseState(name string) (State, error) {
	for i := range names {
		n := names[i]
		if strings.EqualFold(name, n.ident) || strings.EqualFold(name, n.long) || strings.EqualFold(name, n.short) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

// transitions[state][tms] is the successor of state when TCK rises with the
// given TMS level.
var transitions = [NumStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the next TAP state after clocking TCK with the provided TMS
// value. It panics if an invalid state is supplied, which should never happen
// when interacting through the exported API.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return transitions[current][1]
	}
	return transitions[current][0]
}

// ResetClocks is the number of TMS-high clocks that reach Test-Logic-Reset
// from any state.
const ResetClocks = 5

// Controller follows the TAP state of a target, either one observed on the
// wire or one being driven.
type Controller struct {
	state State
}

// NewController returns a controller positioned in the given state.
func NewController(initial State) *Controller {
	return &Controller{state: initial}
}

// State reports the tracked state.
func (c *Controller) State() State {
	return c.state
}

// Set forcibly overrides the tracked state. Used for TRST and cold start.
func (c *Controller) Set(s State) {
	c.state = s
}

// Advance clocks the controller once and reports whether the state changed.
func (c *Controller) Advance(tms bool) bool {
	next := NextState(c.state, tms)
	changed := next != c.state
	c.state = next
	return changed
}

// PathTo returns the shortest TMS pattern from the tracked state to target.
// The controller itself does not move.
func (c *Controller) PathTo(target State) ([]bool, error) {
	return Path(c.state, target)
}

// Path returns the shortest TMS pattern that walks the TAP from one state to
// another. The pattern is empty when from equals to.
func Path(from, to State) ([]bool, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("tap: no path from state %d to %d", from, to)
	}

	// Breadth-first search recording how each state was first reached.
	type step struct {
		prev State
		tms  bool
		seen bool
	}
	var steps [NumStates]step
	steps[from].seen = true
	queue := []State{from}
	for len(queue) > 0 && !steps[to].seen {
		cur := queue[0]
		queue = queue[1:]
		for i, next := range transitions[cur] {
			if steps[next].seen {
				continue
			}
			steps[next] = step{prev: cur, tms: i == 1, seen: true}
			queue = append(queue, next)
		}
	}

	var tms []bool
	for st := to; st != from; st = steps[st].prev {
		tms = append(tms, steps[st].tms)
	}
	slices.Reverse(tms)
	return tms, nil
}
