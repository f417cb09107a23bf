package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/jtagdecode/pkg/capture"
)

// resetFlags restores every flag to its default so one process can run
// several commands.
func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd.PersistentFlags())
	for _, c := range []*cobra.Command{decodeCmd, simulateCmd, settingsInitCmd, settingsShowCmd} {
		resetFlags(c.Flags())
	}
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// TestSimulateDecodeE2E synthesizes the built-in capture and decodes it back.
func TestSimulateDecodeE2E(t *testing.T) {
	dir := t.TempDir()
	capDir := filepath.Join(dir, "capture")

	output, err := execute(t, "simulate", "--out", capDir)
	if err != nil {
		t.Fatalf("simulate: %v\nOutput: %s", err, output)
	}
	for _, want := range []string{"Wrote 5 channels", "Decode with: --tms 0 --tck 1 --tdi 2 --tdo 3 --trst 4"} {
		if !strings.Contains(output, want) {
			t.Errorf("simulate output missing %q\nGot:\n%s", want, output)
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(capDir, capture.DigitalFileName(capture.ChannelID(i)))); err != nil {
			t.Fatalf("channel file %d: %v", i, err)
		}
	}

	exportFile := filepath.Join(dir, "jtag.txt")
	reportFile := filepath.Join(dir, "jtag.json")
	output, err = execute(t, "decode", capDir,
		"--rate", "1000000",
		"--tms", "0", "--tck", "1", "--tdi", "2", "--tdo", "3", "--trst", "4",
		"--initial-state", "Test-Logic-Reset",
		"--out", exportFile, "--json", reportFile)
	if err != nil {
		t.Fatalf("decode: %v\nOutput: %s", err, output)
	}
	for _, want := range []string{"Decoded", "Shift-IR", "Shift-DR", "Update-IR"} {
		if !strings.Contains(output, want) {
			t.Errorf("decode output missing %q\nGot:\n%s", want, output)
		}
	}

	export, err := os.ReadFile(exportFile)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(string(export), "\n")
	if lines[0] != "Time [s];TAP state;TDI;TDO" {
		t.Fatalf("export header = %q", lines[0])
	}
	if !strings.Contains(string(export), ";Shift-IR;0x80;0x0A\n") {
		t.Errorf("export missing the first IR scan\nGot:\n%s", export)
	}

	data, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report []map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	var widths []float64
	for _, r := range report {
		if n, ok := r["BitCount"].(float64); ok {
			widths = append(widths, n)
		}
	}
	want := []float64{8, 8, 80, 18, 170, 256}
	if len(widths) != len(want) {
		t.Fatalf("shift widths = %v, want %v", widths, want)
	}
	for i := range want {
		if widths[i] != want[i] {
			t.Fatalf("shift widths = %v, want %v", widths, want)
		}
	}
}

func TestDecodeErrorsE2E(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"missing rate", []string{"decode", dir, "--tms", "0", "--tck", "1"}},
		{"rate too low", []string{"decode", dir, "--rate", "1000", "--tms", "0", "--tck", "1"}},
		{"missing channels", []string{"decode", dir, "--rate", "1000000"}},
		{"missing files", []string{"decode", dir, "--rate", "1000000", "--tms", "0", "--tck", "1"}},
		{"bad base", []string{"decode", dir, "--rate", "1000000", "--tms", "0", "--tck", "1", "--base", "octal"}},
		{"no directory", []string{"decode", "--rate", "1000000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output, err := execute(t, tt.args...); err == nil {
				t.Errorf("Expected error but got none\nOutput: %s", output)
			}
		})
	}
}

func TestSettingsE2E(t *testing.T) {
	file := filepath.Join(t.TempDir(), "jtag.sexp")

	output, err := execute(t, "settings", "init", file)
	if err != nil {
		t.Fatalf("settings init: %v\nOutput: %s", err, output)
	}

	output, err = execute(t, "settings", "show", "--settings", file, "--tdo", "none", "--dr-order", "msb")
	if err != nil {
		t.Fatalf("settings show: %v\nOutput: %s", err, output)
	}
	for _, want := range []string{"(tms 0)", "(tdo none)", "(trst 4)", "(dr-bit-order msb)", "(ir-bit-order lsb)"} {
		if !strings.Contains(output, want) {
			t.Errorf("settings show output missing %q\nGot:\n%s", want, output)
		}
	}

	if _, err := execute(t, "settings", "show", "--settings", file, "--tck", "0"); err == nil {
		t.Errorf("overlapping channels accepted")
	}
	if _, err := execute(t, "settings", "show", "--initial-state", "Nowhere"); err == nil {
		t.Errorf("unknown initial state accepted")
	}
}
