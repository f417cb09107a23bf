package analyzer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chewxy/sexp"

	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

// MinSampleRateHz is the lowest capture sample rate the decoder accepts.
const MinSampleRateHz = 9600

// BitOrder is the order in which a register's bits travel on TDI/TDO.
type BitOrder int

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

func (o BitOrder) String() string {
	switch o {
	case MSBFirst:
		return "msb"
	case LSBFirst:
		return "lsb"
	}
	return fmt.Sprintf("BitOrder(%d)", int(o))
}

// ParseBitOrder accepts "msb", "lsb" and their long forms.
func ParseBitOrder(s string) (BitOrder, error) {
	switch strings.ToLower(s) {
	case "msb", "msb-first", "msbfirst":
		return MSBFirst, nil
	case "lsb", "lsb-first", "lsbfirst":
		return LSBFirst, nil
	}
	return 0, fmt.Errorf("analyzer: unknown bit order %q", s)
}

var (
	// ErrMissingChannel is returned when TMS or TCK is not assigned.
	ErrMissingChannel = errors.New("analyzer: TMS and TCK channels must be assigned")
	// ErrChannelOverlap is returned when two signals share a channel.
	ErrChannelOverlap = errors.New("analyzer: each signal needs its own channel")
)

// Settings selects the channels to decode and how shifted data is ordered.
type Settings struct {
	// Channel assignment. TDI, TDO and TRST are optional.
	TMS  capture.ChannelID
	TCK  capture.ChannelID
	TDI  capture.ChannelID
	TDO  capture.ChannelID
	TRST capture.ChannelID

	// InitialState is the TAP state at capture start unless TRST is held
	// low there.
	InitialState tap.State

	IRBitOrder BitOrder
	DRBitOrder BitOrder

	// ShowBitCount adds bit counts to rendered text and exports.
	ShowBitCount bool

	// ChunkBits splits long shifts into frames of this many clocks.
	// Zero disables chunking.
	ChunkBits int
}

// DefaultSettings returns settings with every channel unassigned, the TAP in
// Run-Test/Idle and both registers shifted LSB first.
func DefaultSettings() *Settings {
	return &Settings{
		TMS:          capture.Undefined,
		TCK:          capture.Undefined,
		TDI:          capture.Undefined,
		TDO:          capture.Undefined,
		TRST:         capture.Undefined,
		InitialState: tap.StateRunTestIdle,
		IRBitOrder:   LSBFirst,
		DRBitOrder:   LSBFirst,
	}
}

// Channels returns the assigned channels in TMS, TCK, TDI, TDO, TRST order.
func (s *Settings) Channels() []capture.ChannelID {
	return []capture.ChannelID{s.TMS, s.TCK, s.TDI, s.TDO, s.TRST}
}

// Validate checks the configuration before a decode starts.
func (s *Settings) Validate() error {
	if !s.TMS.Defined() || !s.TCK.Defined() {
		return ErrMissingChannel
	}
	seen := make(map[capture.ChannelID]bool, 5)
	for _, id := range s.Channels() {
		if !id.Defined() {
			continue
		}
		if seen[id] {
			return fmt.Errorf("%w: channel %s assigned twice", ErrChannelOverlap, id)
		}
		seen[id] = true
	}
	if !s.InitialState.Valid() {
		return fmt.Errorf("analyzer: invalid initial state %d", s.InitialState)
	}
	if s.IRBitOrder != MSBFirst && s.IRBitOrder != LSBFirst {
		return fmt.Errorf("analyzer: invalid IR bit order %d", s.IRBitOrder)
	}
	if s.DRBitOrder != MSBFirst && s.DRBitOrder != LSBFirst {
		return fmt.Errorf("analyzer: invalid DR bit order %d", s.DRBitOrder)
	}
	if s.ChunkBits < 0 {
		return fmt.Errorf("analyzer: chunk size %d is negative", s.ChunkBits)
	}
	return nil
}

// BitOrderFor returns the configured order for a shift state.
func (s *Settings) BitOrderFor(state tap.State) BitOrder {
	if state == tap.StateShiftIR {
		return s.IRBitOrder
	}
	return s.DRBitOrder
}

const settingsHead = "jtag-settings"

// Save writes the settings as an s-expression.
func (s *Settings) Save(w io.Writer) error {
	_, err := fmt.Fprintf(w, "(%s\n  (tms %s)\n  (tck %s)\n  (tdi %s)\n  (tdo %s)\n  (trst %s)\n"+
		"  (initial-state %s)\n  (ir-bit-order %s)\n  (dr-bit-order %s)\n"+
		"  (show-bit-count %t)\n  (chunk-bits %d))\n",
		settingsHead, s.TMS, s.TCK, s.TDI, s.TDO, s.TRST,
		s.InitialState, s.IRBitOrder, s.DRBitOrder,
		s.ShowBitCount, s.ChunkBits)
	return err
}

// LoadSettings reads a settings s-expression on top of DefaultSettings.
// Unknown keys are skipped and a value that does not parse leaves the default
// in place, so files written by newer versions still load.
func LoadSettings(r io.Reader) (*Settings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("analyzer: read settings: %w", err)
	}
	exprs, err := sexp.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("analyzer: parse settings: %w", err)
	}
	if len(exprs) == 0 || exprs[0] == nil || exprs[0].IsLeaf() {
		return nil, fmt.Errorf("analyzer: settings must be a (%s ...) list", settingsHead)
	}

	items := sexpToSlice(exprs[0])
	if len(items) == 0 || atom(items[0]) != settingsHead {
		return nil, fmt.Errorf("analyzer: settings must start with %q", settingsHead)
	}

	s := DefaultSettings()
	for _, item := range items[1:] {
		kv := sexpToSlice(item)
		if len(kv) != 2 {
			continue
		}
		s.apply(atom(kv[0]), atom(kv[1]))
	}
	return s, nil
}

func (s *Settings) apply(key, value string) {
	switch key {
	case "tms":
		s.TMS = parseChannel(value, s.TMS)
	case "tck":
		s.TCK = parseChannel(value, s.TCK)
	case "tdi":
		s.TDI = parseChannel(value, s.TDI)
	case "tdo":
		s.TDO = parseChannel(value, s.TDO)
	case "trst":
		s.TRST = parseChannel(value, s.TRST)
	case "initial-state":
		if st, err := tap.ParseState(value); err == nil {
			s.InitialState = st
		}
	case "ir-bit-order":
		if o, err := ParseBitOrder(value); err == nil {
			s.IRBitOrder = o
		}
	case "dr-bit-order":
		if o, err := ParseBitOrder(value); err == nil {
			s.DRBitOrder = o
		}
	case "show-bit-count":
		if b, err := strconv.ParseBool(value); err == nil {
			s.ShowBitCount = b
		}
	case "chunk-bits":
		if n, err := parseInt(value); err == nil && n >= 0 {
			s.ChunkBits = n
		}
	}
}

// ParseChannel reads a channel number, or "none" for an unassigned channel.
func ParseChannel(value string) (capture.ChannelID, error) {
	if strings.EqualFold(value, "none") || value == "-1" {
		return capture.Undefined, nil
	}
	n, err := parseInt(value)
	if err != nil || n < 0 {
		return capture.Undefined, fmt.Errorf("analyzer: invalid channel %q", value)
	}
	return capture.ChannelID(n), nil
}

func parseChannel(value string, fallback capture.ChannelID) capture.ChannelID {
	id, err := ParseChannel(value)
	if err != nil {
		return fallback
	}
	return id
}

// parseInt also accepts integral floats such as "3.0", in case a number atom
// prints in float form.
func parseInt(value string) (int, error) {
	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("analyzer: %q is not an integer", value)
	}
	return int(f), nil
}

func atom(s sexp.Sexp) string {
	if s == nil || !s.IsLeaf() {
		return ""
	}
	return strings.Trim(fmt.Sprint(s), `"`)
}

// sexpToSlice flattens one level of a list.
func sexpToSlice(s sexp.Sexp) []sexp.Sexp {
	var items []sexp.Sexp
	if s == nil || s.IsLeaf() {
		return items
	}
	for s != nil {
		leafCount := s.LeafCount()
		if leafCount == 0 {
			break
		}
		if head := s.Head(); head != nil {
			items = append(items, head)
		}
		if leafCount <= 1 {
			break
		}
		s = s.Tail()
		if s == nil || s.IsLeaf() {
			break
		}
	}
	return items
}
