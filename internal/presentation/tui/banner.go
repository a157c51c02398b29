package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Using a subtle gradient-like color scheme (Teal/Blue)
	lines := []struct {
		text, color string
	}{
		{"             _       _                ", "#2dd4bf"},
		{"   __ _   __| |_   _(_)___  ___  _ __ ", "#22d3ee"},
		{"  / _` | / _` \\ \\ / / / __|/ _ \\| '__|", "#38bdf8"},
		{" | (_| || (_| |\\ V /| \\__ \\ (_) | |   ", "#60a5fa"},
		{"  \\__,_| \\__,_| \\_/ |_|___/\\___/|_|   ", "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, out.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
