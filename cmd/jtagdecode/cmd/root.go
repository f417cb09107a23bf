package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "jtagdecode",
	Short: "JTAG bus decoder for logic analyzer captures",
	Long: `Decode TMS/TCK/TDI/TDO/TRST recordings into TAP state frames and the
data shifted through the instruction and data registers.

Captures are directories of Saleae digital_<channel>.bin files.

Examples:
  jtagdecode simulate --out capture/                         # Synthesize a capture
  jtagdecode decode capture/ --rate 1000000 --out jtag.txt   # Decode and export
  jtagdecode settings init jtag.sexp                         # Write a settings file
  jtagdecode devices                                         # List capture sources`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// newLogger returns a debug-level text logger on w when --verbose is set and a
// discarding logger otherwise.
func newLogger(w io.Writer) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
