package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLineSize bounds one command line in bytes.
const DefaultMaxLineSize = 4096

// EnvMaxInputSize overrides DefaultMaxLineSize.
const EnvMaxInputSize = "WEFT_MAX_INPUT_SIZE"

const esc = 0x1b

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// CleanLine prepares one input line for the command grammars.
//
// Oversized lines and invalid UTF-8 are rejected, never truncated. Terminal
// escape sequences (arrow keys, colours, titles) are removed whole, tabs
// become spaces so they separate words like a space does, and every other
// control character is dropped. The result is trimmed; an empty result means
// the line carried no command.
func CleanLine(line string) (string, error) {
	if limit := maxLineSize(); len(line) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(line), limit)
	}
	if !utf8.ValidString(line) {
		return "", ErrInvalidUTF8
	}

	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); {
		if line[i] == esc {
			i = skipEscape(line, i)
			continue
		}
		r, size := utf8.DecodeRuneInString(line[i:])
		i += size
		switch {
		case r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// skipEscape returns the index just past the escape sequence starting at i.
func skipEscape(s string, i int) int {
	i++
	if i >= len(s) {
		return i
	}
	switch s[i] {
	case '[':
		// CSI: parameter and intermediate bytes, then one final byte.
		for i++; i < len(s); i++ {
			if s[i] >= 0x40 && s[i] <= 0x7e {
				return i + 1
			}
		}
		return i
	case ']':
		// OSC: ends at BEL or ESC \.
		for i++; i < len(s); i++ {
			if s[i] == 0x07 {
				return i + 1
			}
			if s[i] == esc && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
		}
		return i
	case 'O':
		return min(i+2, len(s))
	}
	return i + 1
}

// validName reports whether name can address a handler or a variable: one
// word with no braces, which would clash with interpolation.
func validName(name string) bool {
	return name != "" && !strings.ContainsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '{' || r == '}'
	})
}

func maxLineSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxLineSize
}
