package results

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/OpenTraceLab/jtagdecode/pkg/analyzer"
	"github.com/OpenTraceLab/jtagdecode/pkg/bitvec"
)

// ExportOptions controls the text export.
type ExportOptions struct {
	// Base renders TDI/TDO values.
	Base bitvec.DisplayBase
	// SampleRate in Hz converts sample numbers to seconds.
	SampleRate uint64
	// Trigger is the sample at time zero.
	Trigger uint64
}

// TimeString formats a sample as seconds relative to trigger.
func TimeString(sample, trigger, sampleRate uint64) string {
	if sampleRate == 0 {
		return "0"
	}
	delta := float64(sample) - float64(trigger)
	return strconv.FormatFloat(delta/float64(sampleRate), 'f', 9, 64)
}

// WriteExport writes one semicolon separated line per committed frame. Shift
// frames carry their TDI/TDO values split into 64-bit groups; other frames
// leave those fields empty. The export stops early with ctx.Err() when ctx is
// cancelled.
func (s *Store) WriteExport(ctx context.Context, w io.Writer, opts ExportOptions) error {
	if opts.SampleRate == 0 {
		return errors.New("results: export needs a sample rate")
	}
	frames := s.Frames()
	showCount := s.settings.ShowBitCount

	bw := bufio.NewWriter(w)
	if showCount {
		bw.WriteString("Time [s];TAP state;TDI;TDO;TDIBitCount;TDOBitCount\n")
	} else {
		bw.WriteString("Time [s];TAP state;TDI;TDO\n")
	}

	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		var tdi, tdo, tdiCount, tdoCount string
		if f.State.IsShift() {
			if d, ok := s.ShiftedData(f.Start); ok {
				tdi = bitvec.Render(d.TDI, opts.Base, bitvec.Break64)
				tdo = bitvec.Render(d.TDO, opts.Base, bitvec.Break64)
				if showCount {
					tdiCount = bitvec.CountString(len(d.TDI), false)
					tdoCount = bitvec.CountString(len(d.TDO), false)
				}
			}
		}

		bw.WriteString(TimeString(f.Start, opts.Trigger, opts.SampleRate))
		bw.WriteByte(';')
		bw.WriteString(f.State.LongName())
		bw.WriteByte(';')
		bw.WriteString(tdi)
		bw.WriteByte(';')
		bw.WriteString(tdo)
		if showCount {
			bw.WriteByte(';')
			bw.WriteString(tdiCount)
			bw.WriteByte(';')
			bw.WriteString(tdoCount)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// FrameReport is the structured form of one frame. Only shift frames carry
// data fields.
type FrameReport struct {
	Start    uint64 `json:"start"`
	End      uint64 `json:"end"`
	State    string `json:"state"`
	TDI      []byte `json:"TDI,omitempty"`
	TDO      []byte `json:"TDO,omitempty"`
	BitCount *int   `json:"BitCount,omitempty"`
}

// Report returns the structured form of every committed frame.
func (s *Store) Report() []FrameReport {
	frames := s.Frames()
	out := make([]FrameReport, 0, len(frames))
	for _, f := range frames {
		r := FrameReport{Start: f.Start, End: f.End, State: f.State.LongName()}
		if d, ok := s.ShiftedData(f.Start); ok && f.State.IsShift() {
			if s.settings.TDI.Defined() && len(d.TDI) > 0 {
				r.TDI = bitvec.Pack(d.TDI)
			}
			if s.settings.TDO.Defined() && len(d.TDO) > 0 {
				r.TDO = bitvec.Pack(d.TDO)
			}
			n := d.BitCount()
			r.BitCount = &n
		}
		out = append(out, r)
	}
	return out
}

// WriteReport writes Report as indented JSON.
func (s *Store) WriteReport(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Report())
}

// Summary counts committed frames per TAP state.
func (s *Store) Summary() map[string]int {
	out := make(map[string]int)
	for _, f := range s.Frames() {
		out[f.State.LongName()]++
	}
	return out
}

var _ analyzer.Sink = (*Store)(nil)
