package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagdecode/pkg/capture/usbsrc"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture sources",
	Long: `List the logic analyzers attached over USB, plus the built-in simulator.

This command only lists sources. Record with the analyzer's own software,
export the channels as digital_<channel>.bin files and run decode on the
export directory. The simulator entry is the simulate command.

Examples:
  jtagdecode devices`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	sources, err := usbsrc.Discover(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to enumerate capture sources: %w", err)
	}

	fmt.Fprintf(out, "Found %d capture source(s):\n", len(sources))
	for i, s := range sources {
		fmt.Fprintf(out, "  %d. %-10s %s\n", i+1, s.Kind, s.Label())
		if verbose && s.Kind != usbsrc.KindSim {
			fmt.Fprintf(out, "     %04X:%04X on bus %d, address %d\n", s.VendorID, s.ProductID, s.Bus, s.Address)
		}
	}
	return nil
}
