package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/soypat/saleae"
)

// Saleae Logic 2 exports each digital channel as its own binary file holding
// the initial level and the time of every transition in seconds.

var errCorruptExport = errors.New("capture: corrupt digital export")

var saleaeID = [8]byte{'<', 'S', 'A', 'L', 'E', 'A', 'E', '>'}

// Offsets into the 44 byte digital header.
const (
	initialStateOffset   = 16
	numTransitionsOffset = 36
)

// ChannelFromDigital converts transition times into sample numbers at
// sampleRate Hz, counting samples from the start of the capture. Two
// transitions that land on the same sample cancel each other out.
func ChannelFromDigital(df *saleae.DigitalFile, sampleRate uint64) *Channel {
	ch := NewChannel(df.Header.InitialState != 0)
	rate := float64(sampleRate)
	for _, t := range df.Data {
		s := math.Round((t - df.Header.Begin) * rate)
		if s < 0 {
			s = 0
		}
		sample := uint64(s)
		if n := len(ch.Edges); n > 0 && sample <= ch.Edges[n-1] {
			ch.Edges = ch.Edges[:n-1]
			continue
		}
		if sample == 0 && len(ch.Edges) == 0 {
			ch.Initial = !ch.Initial
			continue
		}
		ch.Edges = append(ch.Edges, sample)
	}
	if len(ch.Edges) == 0 {
		ch.Edges = nil
	}
	return ch
}

// DigitalFromChannel converts a channel back into transition times. end is
// the last sample of the capture.
//
// A channel without edges gets two transitions at end, which
// ChannelFromDigital collapses again.
func DigitalFromChannel(ch *Channel, sampleRate uint64, end uint64) *saleae.DigitalFile {
	rate := float64(sampleRate)
	df := &saleae.DigitalFile{
		Header: saleae.DigitalHeader{
			Info: saleae.FileHeader{ID: saleaeID, Type: saleae.FileTypeDigital},
			End:  float64(end) / rate,
		},
		Data: make([]float64, 0, len(ch.Edges)),
	}
	if ch.Initial {
		df.Header.InitialState = 1
	}
	for _, e := range ch.Edges {
		df.Data = append(df.Data, float64(e)/rate)
	}
	if len(df.Data) == 0 {
		df.Data = append(df.Data, df.Header.End, df.Header.End)
	}
	df.Header.NumTransitions = uint64(len(df.Data))
	return df
}

// readDigital wraps saleae.ReadDigitalFile, which panics on an export with no
// transitions. Such a file is a constant level and only its initial state is
// kept.
func readDigital(r io.Reader) (df *saleae.DigitalFile, err error) {
	var hdr bytes.Buffer
	defer func() {
		if recover() == nil {
			return
		}
		b := hdr.Bytes()
		if len(b) < numTransitionsOffset+8 || binary.LittleEndian.Uint64(b[numTransitionsOffset:]) != 0 {
			df, err = nil, errCorruptExport
			return
		}
		df = &saleae.DigitalFile{Header: saleae.DigitalHeader{
			InitialState: binary.LittleEndian.Uint32(b[initialStateOffset:]),
		}}
		err = nil
	}()
	return saleae.ReadDigitalFile(io.TeeReader(r, &hdr))
}

// DigitalFileName is the name Saleae gives the export of channel id.
func DigitalFileName(id ChannelID) string {
	return fmt.Sprintf("digital_%d.bin", int(id))
}

// ReadChannel reads one digital export and converts it at sampleRate Hz.
func ReadChannel(r io.Reader, sampleRate uint64) (*Channel, error) {
	df, err := readDigital(r)
	if err != nil {
		return nil, err
	}
	return ChannelFromDigital(df, sampleRate), nil
}

// WriteChannel writes ch as a digital export. end is the last sample of the
// capture.
func WriteChannel(w io.Writer, ch *Channel, sampleRate uint64, end uint64) error {
	_, err := DigitalFromChannel(ch, sampleRate, end).WriteTo(w)
	return err
}

// LoadDir reads digital_<id>.bin for every defined id in dir.
func LoadDir(dir string, sampleRate uint64, ids ...ChannelID) (map[ChannelID]*Channel, error) {
	out := make(map[ChannelID]*Channel, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		path := filepath.Join(dir, DigitalFileName(id))
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("capture: channel %s: %w", id, err)
		}
		ch, err := ReadChannel(f, sampleRate)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("capture: %s: %w", path, err)
		}
		out[id] = ch
	}
	return out, nil
}

// WriteDir writes every channel to dir as digital_<id>.bin.
func WriteDir(dir string, sampleRate uint64, end uint64, channels map[ChannelID]*Channel) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for id, ch := range channels {
		if !id.Defined() {
			continue
		}
		path := filepath.Join(dir, DigitalFileName(id))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteChannel(f, ch, sampleRate, end); err != nil {
			f.Close()
			return fmt.Errorf("capture: write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
