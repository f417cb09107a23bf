package analyzer

import (
	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

// Frame is a closed sample interval during which the TAP stayed in State.
// Start and End are inclusive.
type Frame struct {
	Start uint64
	End   uint64
	State tap.State
}

// ShiftedData holds the bits exchanged during one Shift-IR or Shift-DR frame,
// keyed by that frame's start sample. Bits are in display order (MSB first)
// once the register's bit order has been applied.
type ShiftedData struct {
	Start uint64
	TDI   []bool
	TDO   []bool
}

// BitCount returns the larger of the TDI and TDO lengths.
func (d *ShiftedData) BitCount() int {
	if len(d.TDI) > len(d.TDO) {
		return len(d.TDI)
	}
	return len(d.TDO)
}

// MarkerKind is the glyph drawn on a channel at a sample.
type MarkerKind int

const (
	MarkerUpArrow MarkerKind = iota
	MarkerOne
	MarkerZero
	MarkerDot
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerUpArrow:
		return "up"
	case MarkerOne:
		return "one"
	case MarkerZero:
		return "zero"
	case MarkerDot:
		return "dot"
	}
	return "unknown"
}

// Marker annotates one sample of one channel.
type Marker struct {
	Sample  uint64
	Kind    MarkerKind
	Channel capture.ChannelID
}

// Sink receives decoder output. Frames and records become visible to readers
// at the next Commit.
type Sink interface {
	AddFrame(f Frame)
	AddShiftedData(d ShiftedData)
	AddMarker(m Marker)
	Commit()
	ReportProgress(sample uint64)
}

// Channels holds one cursor per signal. TDI, TDO and TRST may be nil.
type Channels struct {
	TMS  capture.Cursor
	TCK  capture.Cursor
	TDI  capture.Cursor
	TDO  capture.Cursor
	TRST capture.Cursor
}

// ChannelsFrom opens cursors on the channels assigned in s. Optional signals
// missing from the map stay nil.
func ChannelsFrom(s *Settings, data map[capture.ChannelID]*capture.Channel) (Channels, error) {
	open := func(id capture.ChannelID) capture.Cursor {
		if !id.Defined() {
			return nil
		}
		ch, ok := data[id]
		if !ok {
			return nil
		}
		return ch.Cursor()
	}
	c := Channels{
		TMS:  open(s.TMS),
		TCK:  open(s.TCK),
		TDI:  open(s.TDI),
		TDO:  open(s.TDO),
		TRST: open(s.TRST),
	}
	if c.TMS == nil || c.TCK == nil {
		return c, ErrMissingChannel
	}
	return c, nil
}
