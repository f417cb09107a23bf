// Package bitvec converts ordered bit sequences, as shifted on TDI/TDO, into
// packed bytes and human readable strings.
//
// A sequence is always read most-significant bit first: bits[0] is the MSB of
// the number it represents. Sequences may be arbitrarily long; values wider
// than 64 bits are rendered chunk-wise (hex, binary) or with big-number
// arithmetic (decimal).
package bitvec

import (
	"fmt"
	"strings"
)

// DisplayBase selects the numeric base used when rendering a sequence.
type DisplayBase int

const (
	Binary DisplayBase = iota
	Decimal
	Hexadecimal
	ASCII
	AsciiHex
)

var baseNames = [...]string{
	Binary:      "binary",
	Decimal:     "decimal",
	Hexadecimal: "hex",
	ASCII:       "ascii",
	AsciiHex:    "asciihex",
}

func (b DisplayBase) String() string {
	if b >= 0 && int(b) < len(baseNames) {
		return baseNames[b]
	}
	return fmt.Sprintf("DisplayBase(%d)", int(b))
}

// ParseDisplayBase maps a base name ("hex", "bin", "dec", "ascii",
// "asciihex") to a DisplayBase.
func ParseDisplayBase(name string) (DisplayBase, error) {
	switch strings.ToLower(name) {
	case "bin", "binary":
		return Binary, nil
	case "dec", "decimal":
		return Decimal, nil
	case "hex", "hexadecimal":
		return Hexadecimal, nil
	case "ascii":
		return ASCII, nil
	case "asciihex", "ascii-hex":
		return AsciiHex, nil
	}
	return 0, fmt.Errorf("bitvec: unknown display base %q", name)
}

// Format selects how sequences longer than a threshold are windowed or split.
type Format int

const (
	// SingleString renders the whole value.
	SingleString Format = iota
	// Ellipsis64 keeps the last 64 bits and appends an ellipsis.
	Ellipsis64
	// Break64 splits into bracketed 64-bit groups, most significant first.
	Break64
	// Ellipsis256 keeps the last 256 bits and appends an ellipsis.
	Ellipsis256
	// Break256 splits into bracketed 256-bit groups, most significant first.
	Break256
)

// EllipsisMarker is appended to values truncated by an Ellipsis format.
const EllipsisMarker = "..."

func (f Format) threshold() int {
	switch f {
	case Ellipsis64, Break64:
		return 64
	case Ellipsis256, Break256:
		return 256
	}
	return 0
}

// Render returns bits as a string in the given base, applying the windowing
// policy of format. For sequences no longer than the format's threshold every
// format yields the same string as SingleString. An empty sequence renders as
// the empty string.
func Render(bits []bool, base DisplayBase, format Format) string {
	n := format.threshold()
	if n == 0 || len(bits) <= n {
		return render(bits, base)
	}

	switch format {
	case Ellipsis64, Ellipsis256:
		return Render(bits[len(bits)-n:], base, format) + EllipsisMarker
	}

	// Break formats chunk from the tail so only the most significant group
	// may be short.
	var groups []string
	for end := len(bits); end > 0; end -= n {
		start := end - n
		if start < 0 {
			start = 0
		}
		groups = append(groups, "["+Render(bits[start:end], base, format)+"]")
	}
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	return strings.Join(groups, ", ")
}

func render(bits []bool, base DisplayBase) string {
	if len(bits) == 0 {
		return ""
	}
	switch base {
	case Binary, Hexadecimal:
		return hexOrBinary(bits, base)
	case Decimal:
		return DecimalString(bits)
	case ASCII:
		return asciiString(bits)
	case AsciiHex:
		return asciiString(bits) + " (" + hexOrBinary(bits, Hexadecimal) + ")"
	}
	return hexOrBinary(bits, Hexadecimal)
}

// hexOrBinary formats bits in chunks of at most 64 bits. The first chunk
// carries the len%64 leading bits so that every later chunk is full width;
// only the first chunk keeps its 0x / 0b prefix.
func hexOrBinary(bits []bool, base DisplayBase) string {
	var sb strings.Builder
	remain := len(bits)
	pos := 0
	for remain > 0 {
		chunk := remain % 64
		if chunk == 0 {
			chunk = 64
		}
		val, _ := Uint64(bits[pos : pos+chunk])
		s := formatUint(val, base, chunk)
		if sb.Len() > 0 {
			s = s[2:]
		}
		sb.WriteString(s)
		pos += chunk
		remain -= chunk
	}
	return sb.String()
}

// formatUint renders v zero-padded to the width implied by numBits.
func formatUint(v uint64, base DisplayBase, numBits int) string {
	if base == Binary {
		return fmt.Sprintf("0b%0*b", numBits, v)
	}
	return fmt.Sprintf("0x%0*X", (numBits+3)/4, v)
}

// DecimalString returns the exact decimal value of bits by repeated
// doubling-with-carry over a decimal digit string.
func DecimalString(bits []bool) string {
	// digits are stored least significant first
	digits := []byte{0}
	for _, b := range bits {
		carry := byte(0)
		if b {
			carry = 1
		}
		for i := range digits {
			d := digits[i]*2 + carry
			digits[i] = d % 10
			carry = d / 10
		}
		if carry > 0 {
			digits = append(digits, carry)
		}
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[len(digits)-1-i] = '0' + d
	}
	return string(out)
}

// asciiString renders the value as a character when it fits in 8 bits and
// falls back to a quoted decimal otherwise.
func asciiString(bits []bool) string {
	hi := len(bits)
	for i, b := range bits {
		if b {
			hi = i
			break
		}
	}
	if len(bits)-hi > 8 {
		return "'" + DecimalString(bits) + "'"
	}
	low := bits
	if len(low) > 8 {
		low = low[len(low)-8:]
	}
	v, _ := Uint64(low)
	return asciiChar(byte(v))
}

func asciiChar(c byte) string {
	if c >= 0x20 && c <= 0x7E {
		return string(rune(c))
	}
	return fmt.Sprintf("'%d'", c)
}

// Uint64 returns the value of bits read MSB first. ok is false when the
// sequence is wider than 64 bits, in which case only the last 64 bits are
// reflected in the result.
func Uint64(bits []bool) (v uint64, ok bool) {
	for _, b := range bits {
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, len(bits) <= 64
}

// FromUint64 returns the n lowest bits of v, MSB first.
func FromUint64(v uint64, n int) []bool {
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		bits[n-1-i] = i < 64 && v&(1<<uint(i)) != 0
	}
	return bits
}

// Parse reads a string of '0' and '1' characters. Underscores and spaces are
// ignored so long literals can be grouped.
func Parse(s string) ([]bool, error) {
	bits := make([]bool, 0, len(s))
	for i, r := range s {
		switch r {
		case '0':
			bits = append(bits, false)
		case '1':
			bits = append(bits, true)
		case '_', ' ':
		default:
			return nil, fmt.Errorf("bitvec: invalid character %q at offset %d", r, i)
		}
	}
	return bits, nil
}

// Reverse reverses bits in place.
func Reverse(bits []bool) {
	for i, j := 0, len(bits)-1; i < j; i, j = i+1, j-1 {
		bits[i], bits[j] = bits[j], bits[i]
	}
}

// Pack groups bits into bytes, MSB first within each byte. Byte boundaries
// are counted from the end of the sequence, so when the length is not a
// multiple of 8 the first byte holds the short leftover group.
func Pack(bits []bool) []byte {
	if len(bits) == 0 {
		return nil
	}
	buf := make([]byte, (len(bits)+7)/8)
	pad := len(buf)*8 - len(bits)
	for i, b := range bits {
		if b {
			pos := i + pad
			buf[pos/8] |= 1 << uint(7-pos%8)
		}
	}
	return buf
}

// CountString formats a bit count as "(N)" or "N".
func CountString(n int, withParentheses bool) string {
	if withParentheses {
		return fmt.Sprintf("(%d)", n)
	}
	return fmt.Sprintf("%d", n)
}
