package analyzer

import "github.com/OpenTraceLab/jtagdecode/pkg/bitvec"

// Accumulator collects TDI/TDO bits for the frame being decoded.
type Accumulator struct {
	start  uint64
	clocks int
	tdi    []bool
	tdo    []bool
}

// Reset discards buffered bits and keys the next record at start.
func (a *Accumulator) Reset(start uint64) {
	a.start = start
	a.clocks = 0
	a.tdi = nil
	a.tdo = nil
}

// Push appends one clock's worth of bits. A nil pointer means the channel is
// not configured.
func (a *Accumulator) Push(tdi, tdo *bool) {
	a.clocks++
	if tdi != nil {
		a.tdi = append(a.tdi, *tdi)
	}
	if tdo != nil {
		a.tdo = append(a.tdo, *tdo)
	}
}

// Clocks returns how many shift clocks were pushed since the last reset.
func (a *Accumulator) Clocks() int {
	return a.clocks
}

// Close returns the buffered bits as a record in display order and empties
// the buffer. For LSB-first registers the sampled order is reversed.
func (a *Accumulator) Close(order BitOrder) ShiftedData {
	d := ShiftedData{Start: a.start, TDI: a.tdi, TDO: a.tdo}
	if order == LSBFirst {
		bitvec.Reverse(d.TDI)
		bitvec.Reverse(d.TDO)
	}
	a.Reset(a.start)
	return d
}
