// Package analyzer decodes JTAG signals into TAP state frames and the data
// shifted on TDI/TDO.
//
// The decoder makes one forward pass over the capture. It stops on a TCK
// rising edge at a time, samples TMS, TDI and TDO there and drives a TAP
// controller with TMS. Every TAP state change closes the current frame.
// A TRST edge that arrives before the next TCK edge truncates the frame in
// progress and puts the TAP into Test-Logic-Reset.
package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

// Options carries optional collaborators of an Analyzer.
type Options struct {
	// Logger receives debug diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Analyzer is a single decode session. It is not safe for concurrent use.
type Analyzer struct {
	settings Settings
	ch       Channels
	sink     Sink
	log      *slog.Logger

	tap    *tap.Controller
	frame  Frame
	acc    Accumulator
	frames int
}

// New validates settings and prepares a decode over ch into sink.
func New(settings *Settings, ch Channels, sink Sink, opts Options) (*Analyzer, error) {
	if settings == nil {
		return nil, errors.New("analyzer: nil settings")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if ch.TMS == nil || ch.TCK == nil {
		return nil, ErrMissingChannel
	}
	if sink == nil {
		return nil, errors.New("analyzer: nil sink")
	}

	// A cursor for an unassigned signal is never sampled.
	if !settings.TDI.Defined() {
		ch.TDI = nil
	}
	if !settings.TDO.Defined() {
		ch.TDO = nil
	}
	if !settings.TRST.Defined() {
		ch.TRST = nil
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Analyzer{
		settings: *settings,
		ch:       ch,
		sink:     sink,
		log:      log,
		tap:      tap.NewController(settings.InitialState),
	}, nil
}

// Run decodes until the capture runs out of edges or ctx is cancelled. The
// frame in progress at that point is dropped. Run returns ctx.Err() on
// cancellation and nil at the end of the capture.
func (a *Analyzer) Run(ctx context.Context) error {
	if !a.setup() {
		a.log.Debug("capture ends while TRST is asserted")
		return nil
	}
	a.log.Debug("decode started",
		"sample", a.frame.Start,
		"state", a.frame.State.LongName(),
		"tdi", a.ch.TDI != nil,
		"tdo", a.ch.TDO != nil,
		"trst", a.ch.TRST != nil)

	for {
		if err := ctx.Err(); err != nil {
			a.log.Debug("decode cancelled", "sample", a.ch.TCK.Sample(), "frames", a.frames)
			return err
		}
		if !a.step() {
			a.log.Debug("end of capture", "sample", a.ch.TCK.Sample(), "frames", a.frames)
			return nil
		}
	}
}

// setup picks the starting TAP state and opens the first frame. It reports
// false when TRST is held low until the end of the capture.
func (a *Analyzer) setup() bool {
	if trst := a.ch.TRST; trst != nil && !trst.Bit() {
		// Starting inside a reset overrides the configured initial state.
		a.tap.Set(tap.StateTestLogicReset)
		if !trst.AdvanceToNextEdge() {
			return false
		}
		a.sync(trst.Sample())
		a.log.Debug("cold start in reset", "release", trst.Sample())
	} else {
		a.tap.Set(a.settings.InitialState)
	}
	a.openFrame(a.ch.TCK.Sample())
	return true
}

// step advances to the next TCK rising edge and processes it.
func (a *Analyzer) step() bool {
	tck := a.ch.TCK
	if !a.advanceTCK() {
		return false
	}
	// Land on a high TCK level. Normally this skips one falling edge; after a
	// TRST release it may take another step.
	for !tck.Bit() {
		if !a.advanceTCK() {
			return false
		}
	}
	sample := tck.Sample()
	a.sync(sample)

	a.sink.AddMarker(Marker{Sample: sample, Kind: MarkerUpArrow, Channel: a.settings.TCK})

	state := a.tap.State()
	if state.IsShift() {
		tdi := a.sampleData(a.ch.TDI, a.settings.TDI)
		tdo := a.sampleData(a.ch.TDO, a.settings.TDO)
		a.acc.Push(tdi, tdo)
	}

	tms := a.ch.TMS
	switch {
	case a.tap.Advance(tms.Bit()):
		a.sink.AddMarker(Marker{Sample: tms.Sample(), Kind: MarkerDot, Channel: a.settings.TMS})
		a.split(sample)
	case a.settings.ChunkBits > 0 && state.IsShift() && a.acc.Clocks() >= a.settings.ChunkBits:
		a.split(sample)
	}

	a.sink.ReportProgress(sample)
	return true
}

// advanceTCK moves TCK to its next edge, unless TRST changes first. A TRST
// assertion closes the current frame, forces Test-Logic-Reset and skips TCK
// forward to the TRST release.
func (a *Analyzer) advanceTCK() bool {
	tck, trst := a.ch.TCK, a.ch.TRST
	next, ok := tck.NextEdge()
	if !ok {
		return false
	}
	if trst == nil || !trst.WouldCrossEdge(next) {
		return tck.AdvanceToNextEdge()
	}

	trst.AdvanceToNextEdge()
	asserted := trst.Sample()
	a.closeFrame(asserted)
	a.tap.Set(tap.StateTestLogicReset)
	a.openFrame(asserted + 1)
	a.sink.Commit()

	if !trst.AdvanceToNextEdge() {
		a.log.Debug("TRST asserted until end of capture", "sample", asserted)
		return false
	}
	a.log.Debug("TRST pulse", "asserted", asserted, "released", trst.Sample())
	tck.AdvanceTo(trst.Sample())
	return true
}

func (a *Analyzer) sampleData(c capture.Cursor, id capture.ChannelID) *bool {
	if c == nil {
		return nil
	}
	bit := c.Bit()
	kind := MarkerZero
	if bit {
		kind = MarkerOne
	}
	a.sink.AddMarker(Marker{Sample: c.Sample(), Kind: kind, Channel: id})
	return &bit
}

// split closes the current frame at end and opens the next one right after
// it in the controller's current state.
func (a *Analyzer) split(end uint64) {
	a.closeFrame(end)
	a.openFrame(end + 1)
	a.sink.Commit()
}

func (a *Analyzer) closeFrame(end uint64) {
	f := a.frame
	f.End = end
	if f.State.IsShift() {
		a.sink.AddShiftedData(a.acc.Close(a.settings.BitOrderFor(f.State)))
	}
	a.sink.AddFrame(f)
	a.frames++
}

func (a *Analyzer) openFrame(start uint64) {
	a.frame = Frame{Start: start, State: a.tap.State()}
	a.acc.Reset(start)
}

func (a *Analyzer) sync(sample uint64) {
	for _, c := range []capture.Cursor{a.ch.TMS, a.ch.TCK, a.ch.TDI, a.ch.TDO, a.ch.TRST} {
		if c != nil {
			c.AdvanceTo(sample)
		}
	}
}
