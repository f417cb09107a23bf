package results

import (
	"github.com/OpenTraceLab/jtagdecode/pkg/bitvec"
	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
)

// DefaultBubbleWidth is the widest annotation drawn above a frame.
const DefaultBubbleWidth = 25

// Truncate shortens s to at most width characters, ending with "...". A width
// of zero or less leaves s unchanged.
func Truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= len(bitvec.EllipsisMarker) {
		return s[:width]
	}
	return s[:width-len(bitvec.EllipsisMarker)] + bitvec.EllipsisMarker
}

// BubbleText returns the annotation for frame i on channel ch. The TMS lane
// shows the TAP state, falling back to the short name when the long one does
// not fit. The TDI and TDO lanes show shifted values. Other channels, and
// frames without data, have no annotation.
func (s *Store) BubbleText(i int, ch capture.ChannelID, base bitvec.DisplayBase, maxWidth int) string {
	f, ok := s.Frame(i)
	if !ok || !ch.Defined() {
		return ""
	}

	switch ch {
	case s.settings.TMS:
		if long := f.State.LongName(); maxWidth <= 0 || len(long) <= maxWidth {
			return long
		}
		return Truncate(f.State.ShortName(), maxWidth)
	case s.settings.TDI, s.settings.TDO:
		d, ok := s.ShiftedData(f.Start)
		if !ok {
			return ""
		}
		bits := d.TDI
		if ch == s.settings.TDO {
			bits = d.TDO
		}
		return Truncate(s.dataText(bits, base), maxWidth)
	}
	return ""
}

// TabularText returns the table row for frame i: the state name followed by
// the TDI and TDO values of shift frames, for whichever of them is assigned.
func (s *Store) TabularText(i int, base bitvec.DisplayBase) []string {
	f, ok := s.Frame(i)
	if !ok {
		return nil
	}
	row := []string{f.State.LongName()}
	d, ok := s.ShiftedData(f.Start)
	if !ok {
		return row
	}
	if s.settings.TDI.Defined() {
		row = append(row, s.dataText(d.TDI, base))
	}
	if s.settings.TDO.Defined() {
		row = append(row, s.dataText(d.TDO, base))
	}
	return row
}

func (s *Store) dataText(bits []bool, base bitvec.DisplayBase) string {
	str := bitvec.Render(bits, base, bitvec.Ellipsis256)
	if s.settings.ShowBitCount {
		str += " " + bitvec.CountString(len(bits), true)
	}
	return str
}
