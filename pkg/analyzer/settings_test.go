package analyzer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.InitialState != tap.StateRunTestIdle {
		t.Fatalf("InitialState = %s, want %s", s.InitialState, tap.StateRunTestIdle)
	}
	if s.IRBitOrder != LSBFirst || s.DRBitOrder != LSBFirst {
		t.Fatalf("bit orders = %s/%s, want lsb/lsb", s.IRBitOrder, s.DRBitOrder)
	}
	for _, id := range s.Channels() {
		if id.Defined() {
			t.Fatalf("default channel %s is assigned", id)
		}
	}
	if err := s.Validate(); !errors.Is(err, ErrMissingChannel) {
		t.Fatalf("Validate() on defaults = %v, want ErrMissingChannel", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"ok", func(*Settings) {}, nil},
		{"optional unassigned", func(s *Settings) { s.TDI, s.TDO, s.TRST = capture.Undefined, capture.Undefined, capture.Undefined }, nil},
		{"no TMS", func(s *Settings) { s.TMS = capture.Undefined }, ErrMissingChannel},
		{"TMS equals TCK", func(s *Settings) { s.TCK = s.TMS }, ErrChannelOverlap},
		{"TRST equals TDO", func(s *Settings) { s.TRST = s.TDO }, ErrChannelOverlap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := testSettings()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}

	s := testSettings()
	s.ChunkBits = -1
	if err := s.Validate(); err == nil {
		t.Fatalf("Validate() with negative chunk size returned nil")
	}
	s = testSettings()
	s.InitialState = tap.State(99)
	if err := s.Validate(); err == nil {
		t.Fatalf("Validate() with invalid state returned nil")
	}
}

func TestSettingsSaveLoad(t *testing.T) {
	want := testSettings()
	want.TRST = capture.Undefined
	want.InitialState = tap.StatePauseDR
	want.IRBitOrder = MSBFirst
	want.ShowBitCount = true
	want.ChunkBits = 32

	var buf bytes.Buffer
	if err := want.Save(&buf); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := LoadSettings(&buf)
	if err != nil {
		t.Fatalf("LoadSettings(%q) returned error: %v", buf.String(), err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	want := testSettings()
	want.InitialState = tap.StateShiftIR
	want.DRBitOrder = MSBFirst

	path := filepath.Join(t.TempDir(), "jtag.sexp")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create settings file: %v", err)
	}
	if err := want.Save(f); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close settings file: %v", err)
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatalf("open settings file: %v", err)
	}
	defer f.Close()
	got, err := LoadSettings(f)
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsQuotedValues(t *testing.T) {
	in := `("jtag-settings"
  (tms "7") (tck "6") (tdo "none")
  (initial-state "Pause-DR")
  (ir-bit-order "msb")
  (show-bit-count "true"))`
	got, err := LoadSettings(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	want := DefaultSettings()
	want.TMS, want.TCK = 7, 6
	want.InitialState = tap.StatePauseDR
	want.IRBitOrder = MSBFirst
	want.ShowBitCount = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsKeepsDefaultsForBadValues(t *testing.T) {
	in := `(jtag-settings
  (tms 4) (tck 5)
  (initial-state Nowhere)
  (dr-bit-order sideways)
  (color blue)
  (chunk-bits -3))`
	got, err := LoadSettings(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	want := DefaultSettings()
	want.TMS, want.TCK = 4, 5
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsRejectsOtherDocuments(t *testing.T) {
	if _, err := LoadSettings(strings.NewReader("(kicad_pcb (version 1))")); err == nil {
		t.Fatalf("LoadSettings accepted a foreign document")
	}
}

func TestParseChannel(t *testing.T) {
	cases := map[string]capture.ChannelID{"0": 0, "7": 7, "none": capture.Undefined, "NONE": capture.Undefined, "-1": capture.Undefined}
	for in, want := range cases {
		got, err := ParseChannel(in)
		if err != nil || got != want {
			t.Fatalf("ParseChannel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseChannel("tck"); err == nil {
		t.Fatalf("ParseChannel(tck) returned nil error")
	}
}

func TestParseBitOrder(t *testing.T) {
	if o, err := ParseBitOrder("MSB"); err != nil || o != MSBFirst {
		t.Fatalf("ParseBitOrder(MSB) = %v, %v", o, err)
	}
	if o, err := ParseBitOrder("lsb-first"); err != nil || o != LSBFirst {
		t.Fatalf("ParseBitOrder(lsb-first) = %v, %v", o, err)
	}
	if _, err := ParseBitOrder("middle"); err == nil {
		t.Fatalf("ParseBitOrder(middle) returned nil error")
	}
}

func TestAccumulatorClose(t *testing.T) {
	var acc Accumulator
	acc.Reset(42)
	one, zero := true, false
	acc.Push(&one, &zero)
	acc.Push(&one, nil)
	acc.Push(&zero, nil)
	if acc.Clocks() != 3 {
		t.Fatalf("Clocks() = %d, want 3", acc.Clocks())
	}

	got := acc.Close(LSBFirst)
	want := ShiftedData{Start: 42, TDI: []bool{false, true, true}, TDO: []bool{false}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Close mismatch (-want +got):\n%s", diff)
	}
	if got.BitCount() != 3 {
		t.Fatalf("BitCount() = %d, want 3", got.BitCount())
	}
	if acc.Clocks() != 0 {
		t.Fatalf("Clocks() after Close = %d, want 0", acc.Clocks())
	}
	if empty := acc.Close(MSBFirst); len(empty.TDI) != 0 || len(empty.TDO) != 0 {
		t.Fatalf("second Close returned data: %+v", empty)
	}
}
