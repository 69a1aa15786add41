package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow
func Warning(format string, a ...any) {
	yellow.Printf("⚠ %s", fmt.Sprintf(format, a...))
}

// Skip prints a per-sample skip message in cyan. Skips are expected and
// frequent in batch reruns, so they get their own visual channel.
func Skip(sample, reason string) {
	cyan.Printf("→ skipping %s: %s\n", sample, reason)
}

// Errorf prints a contained per-sample error in red to stderr. The batch
// continues after these; nothing is propagated to the caller.
func Errorf(format string, a ...any) {
	red.Fprintf(os.Stderr, "✗ %s", fmt.Sprintf(format, a...))
}
