package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showSettings settingsFlags

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Create and inspect decoder settings files",
	Long: `Decoder settings are stored as an s-expression:

  (jtag-settings
    (tms 0)
    (tck 1)
    (tdi 2)
    (tdo 3)
    (trst 4)
    (initial-state RunTestIdle)
    (ir-bit-order lsb)
    (dr-bit-order lsb)
    (show-bit-count false)
    (chunk-bits 0))

Unknown keys are ignored and values that do not parse keep their defaults.`,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write settings for channels 0-4 to a file or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := standardSettings()
		if len(args) == 0 {
			return s.Save(cmd.OutOrStdout())
		}
		if err := writeOutput(cmd.OutOrStdout(), args[0], s.Save); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Validate and print the effective settings",
	Long: `Load --settings, apply the channel and decoder flags, validate the result
and print it.

Examples:
  jtagdecode settings show --settings jtag.sexp --tdo none`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := showSettings.resolve(cmd.Flags(), standardSettings())
		if err != nil {
			return err
		}
		return s.Save(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsShowCmd)

	showSettings.register(settingsShowCmd.Flags())
}
