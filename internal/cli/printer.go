package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	SymbolPass    = "✓"
	SymbolFail    = "✗"
	SymbolArrow   = "→"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"

	Indent = "  "

	lineWidth = 60
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// SetOutput redirects console output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := out
	out = w
	return prev
}

func printLine(line string) {
	outMu.Lock()
	defer outMu.Unlock()
	_, _ = fmt.Fprintln(out, line)
}

func Section(title string) {
	printLine(fmt.Sprintf("\n━━ %s %s", title, strings.Repeat("━", max(lineWidth-len(title)-4, 2))))
}

func RunHeader(name string) {
	printLine(fmt.Sprintf("\n┌─ %s %s", name, strings.Repeat("─", max(lineWidth-2-len(name), 2))))
}

func RunFooter() {
	printLine("└" + strings.Repeat("─", lineWidth))
}

func Infof(format string, args ...any) {
	printLine(Indent + infoStyle.Render(SymbolInfo) + " " + fmt.Sprintf(format, args...))
}

func Failf(format string, args ...any) {
	printLine(Indent + failStyle.Render(SymbolFail) + " " + fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	printLine(Indent + warnStyle.Render(SymbolWarning) + " " + fmt.Sprintf(format, args...))
}

func Linef(format string, args ...any) {
	printLine(Indent + fmt.Sprintf(format, args...))
}

// StatusLinef prints a pass or fail marker in front of the line.
func StatusLinef(ok bool, format string, args ...any) {
	symbol := passStyle.Render(SymbolPass)
	if !ok {
		symbol = failStyle.Render(SymbolFail)
	}
	printLine(Indent + symbol + " " + fmt.Sprintf(format, args...))
}

func KeyValue(key, value string) {
	printLine(Indent + keyStyle.Render(fmt.Sprintf("%-20s", key+":")) + " " + value)
}

// KeyValuePairs prints alternating keys and values on one line. An odd count prints nothing.
func KeyValuePairs(pairs ...string) {
	if len(pairs)%2 != 0 {
		return
	}
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		parts = append(parts, keyStyle.Render(pairs[i]+":")+" "+pairs[i+1])
	}
	printLine(Indent + strings.Join(parts, "  │  "))
}

func Blank() {
	printLine("")
}

func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

func FormatMillis(ms int) string {
	return humanize.Comma(int64(ms)) + "ms"
}

// FormatPercent renders a ratio in [0,1] as a percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func FormatReqs(count int64) string {
	if count < 1_000_000 {
		return humanize.Comma(count)
	}
	value, unit := humanize.ComputeSI(float64(count))
	return fmt.Sprintf("%.2f%s", value, unit)
}

// Truncate shortens text to maxLen runes plus an ellipsis.
func Truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
