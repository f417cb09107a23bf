package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagdecode/pkg/analyzer"
	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/sim"
)

var (
	simSettings   settingsFlags
	simScript     string
	simOutDir     string
	simSampleRate uint64
	simSpeed      int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Synthesize a JTAG capture",
	Long: `Run a stimulus script against a simulated TAP and write the resulting
waveforms as Saleae digital_<channel>.bin files.

Without --script a built-in stimulus is used: a reset, IR and DR scans of
8 to 256 bits and a TRST pulse. Channels default to TMS=0, TCK=1, TDI=2,
TDO=3 and TRST=4.

Script statements:
  reset [hard]         five TMS-high clocks, or a TRST pulse
  idle N               N clocks in Run-Test/Idle
  ir BITS TDI [tdo V]  instruction scan
  dr BITS TDI [tdo V]  data scan
  trst N               hold TRST low for N clocks
  goto STATE           walk the TAP to STATE
  gap N                N TCK half periods without clocking
  speed HZ             TCK frequency

Examples:
  # Built-in stimulus at 1 MS/s
  jtagdecode simulate --out capture/

  # Custom script
  jtagdecode simulate --script scan.jtag --out capture/ --rate 4000000`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simSettings.register(simulateCmd.Flags())
	simulateCmd.Flags().StringVarP(&simScript, "script", "s", "", "stimulus script (default: built-in)")
	simulateCmd.Flags().StringVarP(&simOutDir, "out", "o", "", "output capture directory")
	simulateCmd.Flags().Uint64VarP(&simSampleRate, "rate", "r", 1000000, "sample rate in Hz")
	simulateCmd.Flags().IntVar(&simSpeed, "speed", 0, "TCK frequency in Hz (default: a tenth of the sample rate)")

	simulateCmd.MarkFlagRequired("out")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	settings, err := simSettings.resolve(cmd.Flags(), standardSettings())
	if err != nil {
		return err
	}

	source, name := sim.DefaultScript(), "built-in"
	if simScript != "" {
		data, err := os.ReadFile(simScript)
		if err != nil {
			return err
		}
		source, name = string(data), simScript
	}
	parser, err := sim.NewParser()
	if err != nil {
		return err
	}
	script, err := parser.ParseString(name, source)
	if err != nil {
		return err
	}

	g, err := sim.NewGenerator(settings, simSampleRate)
	if err != nil {
		return err
	}
	g.Logger = newLogger(cmd.ErrOrStderr())
	if simSpeed > 0 {
		if err := g.SetSpeed(simSpeed); err != nil {
			return err
		}
	}
	if err := script.Run(cmd.Context(), g); err != nil {
		return err
	}

	channels := g.Channels()
	if err := capture.WriteDir(simOutDir, g.SampleRate(), g.End(), channels); err != nil {
		return err
	}

	if verbose {
		for _, id := range settings.Channels() {
			if ch, ok := channels[id]; ok {
				fmt.Fprintf(out, "  %s: %d edges\n", capture.DigitalFileName(id), len(ch.Edges))
			}
		}
	}
	fmt.Fprintf(out, "Wrote %d channels to %s: %d TCK clocks, %d samples at %d Hz\n",
		len(channels), simOutDir, g.Clocks(), g.End(), g.SampleRate())
	writeSettingsHint(out, settings)
	return nil
}

func writeSettingsHint(w io.Writer, s *analyzer.Settings) {
	fmt.Fprintf(w, "Decode with: --tms %s --tck %s --tdi %s --tdo %s --trst %s\n", s.TMS, s.TCK, s.TDI, s.TDO, s.TRST)
}
