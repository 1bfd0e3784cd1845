package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text, color string
}{
	{"                   __ _   ", "#818cf8"},
	{" __      __  ___  / _| |_ ", "#a78bfa"},
	{" \\ \\ /\\ / / / _ \\| |_| __|", "#c084fc"},
	{"  \\ V  V / |  __/|  _| |_ ", "#e879f9"},
	{"   \\_/\\_/   \\___||_|  \\__|", "#f472b6"},
}

// PrintBanner writes the ASCII banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, termenv.String("   v"+v).Faint())
	}
	fmt.Fprintln(w)
}

// SystemMessage writes a ">>> " prefixed status line.
func SystemMessage(w io.Writer, format string, args ...any) {
	p := termenv.ColorProfile()
	prefix := termenv.String(">>>").Foreground(p.Color("#818cf8")).Bold()
	fmt.Fprintf(w, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}
