package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/jtagdecode/pkg/analyzer"
	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

// settingsFlags are the decoder settings accepted on the command line. Flags
// that were given override the settings file.
type settingsFlags struct {
	file         string
	tms          string
	tck          string
	tdi          string
	tdo          string
	trst         string
	initialState string
	irOrder      string
	drOrder      string
	bitCount     bool
	chunk        int
}

func (f *settingsFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "settings", "", "settings file (s-expression)")
	fs.StringVar(&f.tms, "tms", "", "TMS channel")
	fs.StringVar(&f.tck, "tck", "", "TCK channel")
	fs.StringVar(&f.tdi, "tdi", "", "TDI channel, or none")
	fs.StringVar(&f.tdo, "tdo", "", "TDO channel, or none")
	fs.StringVar(&f.trst, "trst", "", "TRST channel, or none")
	fs.StringVar(&f.initialState, "initial-state", "", "TAP state at capture start (e.g. Run-Test/Idle)")
	fs.StringVar(&f.irOrder, "ir-order", "", "instruction register bit order (lsb, msb)")
	fs.StringVar(&f.drOrder, "dr-order", "", "data register bit order (lsb, msb)")
	fs.BoolVar(&f.bitCount, "bit-count", false, "show shifted bit counts")
	fs.IntVar(&f.chunk, "chunk", 0, "split shifts every N clocks (0 disables)")
}

// resolve loads the settings file, or starts from fallback when none is
// given, and applies the flags that were set.
func (f *settingsFlags) resolve(fs *pflag.FlagSet, fallback *analyzer.Settings) (*analyzer.Settings, error) {
	s := fallback
	if f.file != "" {
		file, err := os.Open(f.file)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		if s, err = analyzer.LoadSettings(file); err != nil {
			return nil, fmt.Errorf("%s: %w", f.file, err)
		}
	}

	channels := []struct {
		name string
		flag string
		dst  *capture.ChannelID
	}{
		{"tms", f.tms, &s.TMS},
		{"tck", f.tck, &s.TCK},
		{"tdi", f.tdi, &s.TDI},
		{"tdo", f.tdo, &s.TDO},
		{"trst", f.trst, &s.TRST},
	}
	for _, c := range channels {
		if !fs.Changed(c.name) {
			continue
		}
		id, err := analyzer.ParseChannel(c.flag)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", c.name, err)
		}
		*c.dst = id
	}

	if fs.Changed("initial-state") {
		st, err := tap.ParseState(f.initialState)
		if err != nil {
			return nil, fmt.Errorf("--initial-state: %w", err)
		}
		s.InitialState = st
	}
	if fs.Changed("ir-order") {
		o, err := analyzer.ParseBitOrder(f.irOrder)
		if err != nil {
			return nil, fmt.Errorf("--ir-order: %w", err)
		}
		s.IRBitOrder = o
	}
	if fs.Changed("dr-order") {
		o, err := analyzer.ParseBitOrder(f.drOrder)
		if err != nil {
			return nil, fmt.Errorf("--dr-order: %w", err)
		}
		s.DRBitOrder = o
	}
	if fs.Changed("bit-count") {
		s.ShowBitCount = f.bitCount
	}
	if fs.Changed("chunk") {
		s.ChunkBits = f.chunk
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// standardSettings assigns channels 0 to 4 to TMS, TCK, TDI, TDO and TRST.
func standardSettings() *analyzer.Settings {
	s := analyzer.DefaultSettings()
	s.TMS, s.TCK, s.TDI, s.TDO, s.TRST = 0, 1, 2, 3, 4
	return s
}
