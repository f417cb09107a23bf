// Package sim synthesizes JTAG captures. A Generator behaves like a JTAG
// adapter (ShiftIR, ShiftDR, ResetTAP) but, instead of driving pins, records
// the TMS/TCK/TDI/TDO/TRST waveforms it would produce.
package sim

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/OpenTraceLab/jtagdecode/pkg/analyzer"
	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

// ShiftRegion identifies whether a shift targets the instruction or data
// register.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

func (r ShiftRegion) String() string {
	if r == ShiftRegionIR {
		return "IR"
	}
	return "DR"
}

// ShiftHook supplies the TDO bits a simulated device answers with.
type ShiftHook func(region ShiftRegion, tdi []byte, bits int) ([]byte, error)

// ShiftOp captures the last shift invocation for inspection within tests.
type ShiftOp struct {
	Region ShiftRegion
	TDI    []byte
	TDO    []byte
	Bits   int
}

const (
	// leadingIdle is the number of TCK half periods before the first clock.
	leadingIdle = 10
	// trstClocks is how long a hard reset holds TRST low.
	trstClocks = 3
)

// Generator records the waveforms of a sequence of JTAG operations. Bits are
// sent least significant first; byte 0 of a buffer holds bits 0 to 7.
type Generator struct {
	// OnShift, when set, produces TDO data. Otherwise TDI is echoed.
	OnShift ShiftHook
	// Logger receives one debug line per operation. Nil discards them.
	Logger *slog.Logger

	settings   analyzer.Settings
	sampleRate uint64
	half       uint64
	now        uint64

	tms, tck, tdi, tdo, trst *capture.Channel

	tap *tap.Controller

	lastShift ShiftOp
	resets    int
	hardReset int
	clocks    int
}

// NewGenerator prepares a capture for the channels assigned in settings at
// sampleRate Hz. TCK runs at a tenth of the sample rate until SetSpeed.
func NewGenerator(settings *analyzer.Settings, sampleRate uint64) (*Generator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if sampleRate < analyzer.MinSampleRateHz {
		return nil, fmt.Errorf("sim: sample rate %dHz below minimum %dHz", sampleRate, analyzer.MinSampleRateHz)
	}
	g := &Generator{
		settings:   *settings,
		sampleRate: sampleRate,
		tms:        capture.NewChannel(true),
		tck:        capture.NewChannel(false),
		tap:        tap.NewController(tap.StateTestLogicReset),
	}
	if settings.TDI.Defined() {
		g.tdi = capture.NewChannel(false)
	}
	if settings.TDO.Defined() {
		g.tdo = capture.NewChannel(false)
	}
	if settings.TRST.Defined() {
		g.trst = capture.NewChannel(true)
	}
	if err := g.SetSpeed(int(sampleRate / 10)); err != nil {
		return nil, err
	}
	g.now = leadingIdle * g.half
	return g, nil
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		g.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return g.Logger
}

// SetSpeed sets the TCK frequency. A TCK period needs at least two samples.
func (g *Generator) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("sim: invalid speed %dHz", hz)
	}
	half := g.sampleRate / (2 * uint64(hz))
	if half == 0 {
		return fmt.Errorf("sim: %dHz TCK needs a sample rate of at least %dHz", hz, 2*hz)
	}
	g.half = half
	return nil
}

// State returns the TAP state the simulated device is in.
func (g *Generator) State() tap.State {
	return g.tap.State()
}

// Clocks returns the number of TCK cycles generated so far.
func (g *Generator) Clocks() int {
	return g.clocks
}

// End returns the sample at which the capture currently ends.
func (g *Generator) End() uint64 {
	return g.now
}

// SampleRate returns the capture sample rate in Hz.
func (g *Generator) SampleRate() uint64 {
	return g.sampleRate
}

// Channels returns the recorded waveforms keyed by their assigned channel.
func (g *Generator) Channels() map[capture.ChannelID]*capture.Channel {
	out := map[capture.ChannelID]*capture.Channel{
		g.settings.TMS: g.tms,
		g.settings.TCK: g.tck,
	}
	if g.tdi != nil {
		out[g.settings.TDI] = g.tdi
	}
	if g.tdo != nil {
		out[g.settings.TDO] = g.tdo
	}
	if g.trst != nil {
		out[g.settings.TRST] = g.trst
	}
	return out
}

// LastShift returns a copy of the most recent shift request.
func (g *Generator) LastShift() ShiftOp {
	return ShiftOp{
		Region: g.lastShift.Region,
		TDI:    append([]byte(nil), g.lastShift.TDI...),
		TDO:    append([]byte(nil), g.lastShift.TDO...),
		Bits:   g.lastShift.Bits,
	}
}

// ResetCounts reports how many resets have been requested (soft as total,
// hardReset as subset).
func (g *Generator) ResetCounts() (soft, hard int) {
	return g.resets, g.hardReset
}

// ShiftIR shifts bits of tdi into the instruction register and returns the
// simulated TDO bits.
func (g *Generator) ShiftIR(tdi []byte, bits int) ([]byte, error) {
	return g.shift(ShiftRegionIR, tdi, nil, bits)
}

// ShiftDR shifts bits of tdi into the data register and returns the simulated
// TDO bits.
func (g *Generator) ShiftDR(tdi []byte, bits int) ([]byte, error) {
	return g.shift(ShiftRegionDR, tdi, nil, bits)
}

// ResetTAP brings the TAP to Test-Logic-Reset. A hard reset pulses TRST when
// one is assigned and falls back to five TMS-high clocks otherwise.
func (g *Generator) ResetTAP(hard bool) error {
	g.resets++
	if hard {
		g.hardReset++
	}
	if hard && g.trst != nil {
		return g.PulseTRST(trstClocks)
	}
	for i := 0; i < tap.ResetClocks; i++ {
		if err := g.clock(true, false, false); err != nil {
			return err
		}
	}
	g.logger().Debug("soft reset", "clocks", tap.ResetClocks)
	return nil
}

// PulseTRST holds TRST low for the given number of TCK cycles with TMS high.
func (g *Generator) PulseTRST(clocks int) error {
	if g.trst == nil {
		return fmt.Errorf("sim: no TRST channel assigned")
	}
	if clocks <= 0 {
		return fmt.Errorf("sim: TRST pulse of %d clocks", clocks)
	}
	if err := g.trst.Set(g.now+1, false); err != nil {
		return err
	}
	asserted := g.now + 1
	g.tap.Set(tap.StateTestLogicReset)
	for i := 0; i < clocks; i++ {
		if err := g.cycle(true, false, false); err != nil {
			return err
		}
	}
	released := g.now + 1
	if err := g.trst.Set(released, true); err != nil {
		return err
	}
	g.now += g.half
	g.logger().Debug("TRST pulse", "asserted", asserted, "released", released)
	return nil
}

// Idle moves to Run-Test/Idle and stays there for the given clocks.
func (g *Generator) Idle(clocks int) error {
	if err := g.GoTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	for i := 0; i < clocks; i++ {
		if err := g.clock(false, false, false); err != nil {
			return err
		}
	}
	return nil
}

// GoTo walks the TAP to target along the shortest TMS path.
func (g *Generator) GoTo(target tap.State) error {
	path, err := g.tap.PathTo(target)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	for _, tms := range path {
		if err := g.clock(tms, false, false); err != nil {
			return err
		}
	}
	return nil
}

// Gap lets time pass without clocking.
func (g *Generator) Gap(halfPeriods int) {
	if halfPeriods > 0 {
		g.now += uint64(halfPeriods) * g.half
	}
}

// shift sends bits of tdi while in Shift-IR/Shift-DR. When tdo is nil the
// device answer comes from OnShift, or TDI is echoed.
func (g *Generator) shift(region ShiftRegion, tdi, tdo []byte, bits int) ([]byte, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("sim: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if len(tdi) < required {
		return nil, fmt.Errorf("sim: tdi buffer too short, need %d bytes", required)
	}

	if tdo == nil {
		if g.OnShift != nil {
			out, err := g.OnShift(region, tdi, bits)
			if err != nil {
				return nil, err
			}
			tdo = out
		} else {
			tdo = append([]byte(nil), tdi[:required]...)
		}
	}
	if len(tdo) < required {
		return nil, fmt.Errorf("sim: tdo buffer too short, need %d bytes", required)
	}

	target := tap.StateShiftDR
	if region == ShiftRegionIR {
		target = tap.StateShiftIR
	}
	if err := g.GoTo(target); err != nil {
		return nil, err
	}
	for i := 0; i < bits; i++ {
		if err := g.clock(i == bits-1, bitAt(tdi, i), bitAt(tdo, i)); err != nil {
			return nil, err
		}
	}
	// Exit1 -> Update -> Run-Test/Idle
	if err := g.clock(true, false, false); err != nil {
		return nil, err
	}
	if err := g.clock(false, false, false); err != nil {
		return nil, err
	}

	g.lastShift = ShiftOp{
		Region: region,
		TDI:    append([]byte(nil), tdi[:required]...),
		TDO:    append([]byte(nil), tdo[:required]...),
		Bits:   bits,
	}
	g.logger().Debug("shift", "region", region, "bits", bits)
	return tdo[:required], nil
}

// clock drives one TCK cycle and advances the TAP model.
func (g *Generator) clock(tms, tdi, tdo bool) error {
	if err := g.cycle(tms, tdi, tdo); err != nil {
		return err
	}
	g.tap.Advance(tms)
	return nil
}

// cycle sets the data lines while TCK is low, raises TCK after half a period
// and lowers it after another.
func (g *Generator) cycle(tms, tdi, tdo bool) error {
	if err := g.tms.Set(g.now, tms); err != nil {
		return err
	}
	if g.tdi != nil {
		if err := g.tdi.Set(g.now, tdi); err != nil {
			return err
		}
	}
	if g.tdo != nil {
		if err := g.tdo.Set(g.now, tdo); err != nil {
			return err
		}
	}
	g.now += g.half
	if err := g.tck.Set(g.now, true); err != nil {
		return err
	}
	g.now += g.half
	if err := g.tck.Set(g.now, false); err != nil {
		return err
	}
	g.clocks++
	return nil
}

func bitAt(buf []byte, i int) bool {
	return buf[i/8]>>(uint(i)%8)&1 == 1
}
