package convert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	placeholderRe = regexp.MustCompile(`\{0(?::([A-Za-z])(\d*))?\}`)
	specifierRe   = regexp.MustCompile(`^([A-Za-z])(\d*)$`)
)

// FormatValue renders v through a binding format string.
//
// Supported shapes:
//   - composite: "Count: {0}", "{0:F2} kg", "{0:N0}", "{0:P1}", "{0:D4}", "{0:X}"
//   - a bare standard specifier: "F2", "N0"
//   - printf verbs: "%05.1f"
//
// An empty format falls back to ToString. Unknown specifiers print the plain value.
func FormatValue(format string, v any) string {
	if format == "" {
		return ToString(v)
	}
	if placeholderRe.MatchString(format) {
		return placeholderRe.ReplaceAllStringFunc(format, func(m string) string {
			sub := placeholderRe.FindStringSubmatch(m)
			return applySpecifier(sub[1], sub[2], v)
		})
	}
	if sub := specifierRe.FindStringSubmatch(format); sub != nil {
		return applySpecifier(sub[1], sub[2], v)
	}
	if strings.Contains(format, "%") {
		return fmt.Sprintf(format, v)
	}
	return format
}

func applySpecifier(spec, precision string, v any) string {
	if spec == "" {
		return ToString(v)
	}
	f, ok := ToFloat(v)
	if !ok {
		return ToString(v)
	}
	prec := -1
	if precision != "" {
		if p, err := strconv.Atoi(precision); err == nil {
			prec = p
		}
	}

	switch strings.ToUpper(spec) {
	case "F":
		if prec < 0 {
			prec = 2
		}
		return strconv.FormatFloat(f, 'f', prec, 64)
	case "N":
		if prec < 0 {
			prec = 2
		}
		p := message.NewPrinter(language.English)
		return p.Sprintf(fmt.Sprintf("%%.%df", prec), f)
	case "P":
		if prec < 0 {
			prec = 2
		}
		return strconv.FormatFloat(f*100, 'f', prec, 64) + " %"
	case "D":
		if !IsWhole(f) {
			return ToString(v)
		}
		s := strconv.FormatInt(int64(f), 10)
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		for len(s) < prec {
			s = "0" + s
		}
		if neg {
			s = "-" + s
		}
		return s
	case "X":
		if !IsWhole(f) {
			return ToString(v)
		}
		s := strconv.FormatInt(int64(f), 16)
		if spec == "X" {
			s = strings.ToUpper(s)
		}
		for len(s) < prec {
			s = "0" + s
		}
		return s
	case "E":
		if prec < 0 {
			prec = 6
		}
		return strconv.FormatFloat(f, 'E', prec, 64)
	case "G":
		return strconv.FormatFloat(f, 'g', prec, 64)
	}
	return ToString(v)
}
