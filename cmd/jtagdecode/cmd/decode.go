package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/OpenTraceLab/jtagdecode/pkg/analyzer"
	"github.com/OpenTraceLab/jtagdecode/pkg/bitvec"
	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
	"github.com/OpenTraceLab/jtagdecode/pkg/results"
	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

var (
	decodeSettings settingsFlags
	sampleRate     uint64
	triggerSample  uint64
	displayBase    string
	exportPath     string
	reportPath     string
)

var decodeCmd = &cobra.Command{
	Use:   "decode <capture-dir>",
	Short: "Decode a JTAG capture",
	Long: `Decode the digital_<channel>.bin files in a capture directory into TAP
state frames and shifted TDI/TDO data.

Channels come from --settings, overridden by --tms, --tck, --tdi, --tdo and
--trst. The export is one semicolon separated line per frame.

Examples:
  # Decode with channels 0-4 and write the export
  jtagdecode decode capture/ --rate 1000000 --tms 0 --tck 1 --tdi 2 --tdo 3 --trst 4 --out jtag.txt

  # Use a settings file and also write a JSON report
  jtagdecode decode capture/ --rate 1000000 --settings jtag.sexp --json jtag.json`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeSettings.register(decodeCmd.Flags())
	decodeCmd.Flags().Uint64VarP(&sampleRate, "rate", "r", 0, "capture sample rate in Hz")
	decodeCmd.Flags().Uint64Var(&triggerSample, "trigger", 0, "sample at time zero in the export")
	decodeCmd.Flags().StringVarP(&displayBase, "base", "b", "hex", "display base (bin, dec, hex, ascii, asciihex)")
	decodeCmd.Flags().StringVarP(&exportPath, "out", "o", "", "write the text export to this file (- for stdout)")
	decodeCmd.Flags().StringVar(&reportPath, "json", "", "write a JSON report to this file (- for stdout)")

	decodeCmd.MarkFlagRequired("rate")
}

func runDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := args[0]

	settings, err := decodeSettings.resolve(cmd.Flags(), analyzer.DefaultSettings())
	if err != nil {
		return err
	}
	if sampleRate < analyzer.MinSampleRateHz {
		return fmt.Errorf("sample rate %dHz is below the minimum of %dHz", sampleRate, analyzer.MinSampleRateHz)
	}
	base, err := bitvec.ParseDisplayBase(displayBase)
	if err != nil {
		return err
	}

	data, err := capture.LoadDir(dir, sampleRate, settings.Channels()...)
	if err != nil {
		return err
	}
	ch, err := analyzer.ChannelsFrom(settings, data)
	if err != nil {
		return err
	}

	store := results.NewStore(settings)
	log := newLogger(cmd.ErrOrStderr())
	a, err := analyzer.New(settings, ch, store, analyzer.Options{Logger: log})
	if err != nil {
		return err
	}

	if f, ok := cmd.ErrOrStderr().(*os.File); ok && !verbose && term.IsTerminal(int(f.Fd())) {
		showProgress(store, f, lastEdge(data))
		defer fmt.Fprint(f, "\r\033[K")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("decode interrupted after %d frames: %w", store.NumFrames(), err)
	}

	printSummary(out, dir, store)

	if exportPath != "" {
		opts := results.ExportOptions{Base: base, SampleRate: sampleRate, Trigger: triggerSample}
		err := writeOutput(out, exportPath, func(w io.Writer) error {
			return store.WriteExport(ctx, w, opts)
		})
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	if reportPath != "" {
		if err := writeOutput(out, reportPath, store.WriteReport); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	return nil
}

func printSummary(w io.Writer, dir string, store *results.Store) {
	fmt.Fprintf(w, "Decoded %d frames from %s\n", store.NumFrames(), dir)
	counts := store.Summary()
	for st := tap.State(0); st < tap.NumStates; st++ {
		if n := counts[st.LongName()]; n > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", st.LongName(), n)
		}
	}
}

// writeOutput runs write against the named file, or against stdout for "-".
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// showProgress draws a percentage on w as the decoder reports TCK samples.
func showProgress(store *results.Store, w io.Writer, end uint64) {
	if end == 0 {
		return
	}
	last := -1
	store.OnProgress(func(sample uint64) {
		pct := int(sample * 100 / end)
		if pct != last {
			last = pct
			fmt.Fprintf(w, "\rdecoding... %3d%%", pct)
		}
	})
}

func lastEdge(data map[capture.ChannelID]*capture.Channel) uint64 {
	var end uint64
	for _, ch := range data {
		if n := len(ch.Edges); n > 0 && ch.Edges[n-1] > end {
			end = ch.Edges[n-1]
		}
	}
	return end
}
