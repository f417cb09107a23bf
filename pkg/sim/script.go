package sim

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/jtagdecode/pkg/tap"
)

// ScriptLexer tokenizes stimulus scripts. Statements are separated by
// whitespace or ';' and '#' starts a comment.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s;]+`},
	{Name: "Hex", Pattern: `0[xX][0-9a-fA-F_]+`},
	{Name: "Bin", Pattern: `0[bB][01_]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_/\-]*`},
})

// Script is a parsed stimulus script.
//
//	reset [hard]         five TMS-high clocks, or a TRST pulse
//	idle N               N clocks in Run-Test/Idle
//	ir BITS TDI [tdo V]  instruction scan
//	dr BITS TDI [tdo V]  data scan
//	trst N               hold TRST low for N clocks
//	goto STATE           walk the TAP to STATE
//	gap N                N TCK half periods without clocking
//	speed HZ             TCK frequency
type Script struct {
	Commands []*Command `@@*`
}

// Command is one script statement.
type Command struct {
	Pos lexer.Position

	Reset *ResetCmd `  @@`
	Idle  *IdleCmd  `| @@`
	Scan  *ScanCmd  `| @@`
	TRST  *TRSTCmd  `| @@`
	GoTo  *GoToCmd  `| @@`
	Gap   *GapCmd   `| @@`
	Speed *SpeedCmd `| @@`
}

// ResetCmd returns the TAP to Test-Logic-Reset.
type ResetCmd struct {
	Hard bool `"reset" @"hard"?`
}

// IdleCmd clocks in Run-Test/Idle.
type IdleCmd struct {
	Clocks int `"idle" @Int`
}

// ScanCmd shifts a value through the instruction or data register.
type ScanCmd struct {
	Register string `@("ir" | "dr")`
	Bits     int    `@Int`
	TDI      *Value `@@`
	TDO      *Value `( "tdo" @@ )?`
}

// TRSTCmd pulses TRST.
type TRSTCmd struct {
	Clocks int `"trst" @Int`
}

// GoToCmd walks the TAP to a named state.
type GoToCmd struct {
	State string `"goto" @Ident`
}

// GapCmd lets time pass without clocking.
type GapCmd struct {
	HalfPeriods int `"gap" @Int`
}

// SpeedCmd changes the TCK frequency.
type SpeedCmd struct {
	Hz int `"speed" @Int`
}

// Value is a numeric literal in decimal, 0x hex or 0b binary.
type Value struct {
	Text string `@(Hex | Bin | Int)`
}

// Int returns the value of the literal.
func (v *Value) Int() (*big.Int, error) {
	text := strings.ReplaceAll(v.Text, "_", "")
	base := 10
	switch {
	case strings.HasPrefix(text, "0x"), strings.HasPrefix(text, "0X"):
		base, text = 16, text[2:]
	case strings.HasPrefix(text, "0b"), strings.HasPrefix(text, "0B"):
		base, text = 2, text[2:]
	}
	n, ok := new(big.Int).SetString(text, base)
	if !ok {
		return nil, fmt.Errorf("sim: invalid number %q", v.Text)
	}
	return n, nil
}

// Bytes returns the value as a little-endian buffer for a bits-wide register.
func (v *Value) Bytes(bits int) ([]byte, error) {
	n, err := v.Int()
	if err != nil {
		return nil, err
	}
	if n.BitLen() > bits {
		return nil, fmt.Errorf("sim: value %s does not fit in %d bits", v.Text, bits)
	}
	buf := make([]byte, (bits+7)/8)
	n.FillBytes(buf)
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf, nil
}

// Parser parses stimulus scripts.
type Parser struct {
	parser *participle.Parser[Script]
}

// NewParser creates a new script parser instance.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[Script](
		participle.Lexer(ScriptLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// Parse parses a script from a reader.
func (p *Parser) Parse(name string, r io.Reader) (*Script, error) {
	script, err := p.parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return script, nil
}

// ParseString parses a script from a string.
func (p *Parser) ParseString(name, input string) (*Script, error) {
	script, err := p.parser.ParseString(name, input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return script, nil
}

// Run executes the script against g, checking ctx between statements.
func (s *Script) Run(ctx context.Context, g *Generator) error {
	for _, cmd := range s.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cmd.run(g); err != nil {
			return fmt.Errorf("%s: %w", cmd.Pos, err)
		}
	}
	return nil
}

func (c *Command) run(g *Generator) error {
	switch {
	case c.Reset != nil:
		return g.ResetTAP(c.Reset.Hard)
	case c.Idle != nil:
		return g.Idle(c.Idle.Clocks)
	case c.Scan != nil:
		return c.Scan.run(g)
	case c.TRST != nil:
		return g.PulseTRST(c.TRST.Clocks)
	case c.GoTo != nil:
		state, err := tap.ParseState(c.GoTo.State)
		if err != nil {
			return err
		}
		return g.GoTo(state)
	case c.Gap != nil:
		g.Gap(c.Gap.HalfPeriods)
		return nil
	case c.Speed != nil:
		return g.SetSpeed(c.Speed.Hz)
	}
	return fmt.Errorf("sim: empty command")
}

func (c *ScanCmd) run(g *Generator) error {
	tdi, err := c.TDI.Bytes(c.Bits)
	if err != nil {
		return err
	}
	var tdo []byte
	if c.TDO != nil {
		if tdo, err = c.TDO.Bytes(c.Bits); err != nil {
			return err
		}
	}
	region := ShiftRegionDR
	if c.Register == "ir" {
		region = ShiftRegionIR
	}
	_, err = g.shift(region, tdi, tdo, c.Bits)
	return err
}

// DefaultScript returns the built-in stimulus: a reset followed by IR and DR
// scans of 8, 80, 18, 170 and 256 bits whose TDI bytes count up from 0x80 and
// TDO bytes from 0x0A, then a TRST pulse.
func DefaultScript() string {
	var sb strings.Builder
	sb.WriteString("# built-in stimulus\nreset\nidle 2\n")

	tdi, tdo := byte(0x80), byte(0x0A)
	value := func(bits int, start *byte) string {
		n := new(big.Int)
		for i := 0; i < (bits+7)/8; i++ {
			n.Lsh(n, 8)
			n.Or(n, big.NewInt(int64(*start)))
			*start++
		}
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
		return fmt.Sprintf("%#x", n.And(n, mask))
	}
	scans := []struct {
		reg  string
		bits int
		idle int
	}{
		{"ir", 8, 4},
		{"dr", 8, 3},
		{"dr", 80, 1},
		{"ir", 18, 2},
		{"dr", 170, 2},
		{"dr", 256, 5},
	}
	for _, s := range scans {
		fmt.Fprintf(&sb, "%s %d %s tdo %s\nidle %d\n", s.reg, s.bits, value(s.bits, &tdi), value(s.bits, &tdo), s.idle)
	}
	sb.WriteString("trst 3\nidle 2\ngap 10\n")
	return sb.String()
}
