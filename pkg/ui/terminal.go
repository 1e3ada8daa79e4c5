// Package ui holds terminal output helpers and desktop notifications.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// ASCIILogo is printed by long-running commands.
const ASCIILogo = `
    ╔══════════════════════════════════════════════╗
    ║   ╦╔═╗  ╔╦╗╔╦╗  ╔╗ ╔═╗╔╦╗                    ║
    ║   ║║ ╦   ║║║║║  ╠╩╗║ ║ ║                     ║
    ║   ╩╚═╝  ═╩╝╩ ╩  ╚═╝╚═╝ ╩                     ║
    ║   COMMENT MONITOR - KEYWORD TO DIRECT MESSAGE ║
    ╚══════════════════════════════════════════════╝
`

var (
	out     io.Writer = os.Stdout
	colored atomic.Bool
	quiet   atomic.Bool
)

func init() {
	colored.Store(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

// SetOutput redirects all helpers to w. Colour is kept only if w is a
// terminal.
func SetOutput(w io.Writer) {
	out = w
	f, ok := w.(*os.File)
	colored.Store(ok && isatty.IsTerminal(f.Fd()))
}

// DisableColor turns ANSI colours off.
func DisableColor() { colored.Store(false) }

// SetQuietMode suppresses everything except errors.
func SetQuietMode(q bool) { quiet.Store(q) }

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes when
// colour is enabled.
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colored.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if quiet.Load() {
		return
	}
	fmt.Fprint(out, Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		fmt.Fprintln(out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if quiet.Load() {
		return
	}
	fmt.Fprintln(out, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	if quiet.Load() {
		return
	}
	fmt.Fprintf(out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if quiet.Load() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if quiet.Load() {
		return
	}
	fmt.Fprintln(out, Magenta(msg))
}
