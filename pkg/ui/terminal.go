// Package ui renders the CLI's human- and machine-readable output:
// colored status lines in text mode, single-line JSON objects in
// json mode, and the error line format the error taxonomy reports
// through.
package ui

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/twharvest/twharvest/pkg/errors"
)

// ASCIILogo is printed once at startup in text mode, unless quiet.
const ASCIILogo = `
    ╔══════════════════════════════════════════════════════════════╗
    ║ ██████╗ ██╗    ██╗██╗  ██╗ █████╗ ██████╗ ██╗   ██╗███████╗███████╗████████╗ ║
    ║ ╚════██╗██║    ██║██║  ██║██╔══██╗██╔══██╗██║   ██║██╔════╝██╔════╝╚══██╔══╝ ║
    ║  █████╔╝██║ █╗ ██║███████║███████║██████╔╝██║   ██║█████╗  ███████╗   ██║    ║
    ║ ██╔═══╝ ██║███╗██║██╔══██║██╔══██║██╔══██╗╚██╗ ██╔╝██╔══╝  ╚════██║   ██║    ║
    ║ ███████╗╚███╔███╔╝██║  ██║██║  ██║██║  ██║ ╚████╔╝ ███████╗███████║   ██║    ║
    ║ ╚══════╝ ╚══╝╚══╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝╚══════╝   ╚═╝    ║
    ╚══════════════════════════════════════════════════════════════╝
`

// OutputFormat selects how status and error lines are rendered.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

var state = struct {
	mu      sync.Mutex
	quiet   bool
	noColor bool
	format  OutputFormat
}{format: FormatText}

// Configure sets the global output mode every Print* function and
// ReportError consult. It is called once from the root command's
// PersistentPreRun.
func Configure(quiet, noColor bool, format OutputFormat) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.quiet = quiet
	state.noColor = noColor
	if format == "" {
		format = FormatText
	}
	state.format = format
}

func snapshot() (quiet, noColor bool, format OutputFormat) {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.quiet, state.noColor, state.format
}

// Color functions for terminal output. Each checks the global
// no-color setting before wrapping.
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(colorString string) func(string) string {
	return func(text string) string {
		_, noColor, _ := snapshot()
		if noColor {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo, suppressed in quiet or json mode.
func PrintLogo() {
	quiet, _, format := snapshot()
	if quiet || format == FormatJSON {
		return
	}
	fmt.Print(Cyan(ASCIILogo))
}

// jsonLine is the single-line JSON shape every json-mode status line
// shares; level is "info", "warn", "success", or "error".
type jsonLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func emit(level string, color func(string) string, msg, detail string) {
	quiet, _, format := snapshot()
	if quiet && level != "error" {
		return
	}
	if format == FormatJSON {
		line, _ := json.Marshal(jsonLine{Level: level, Message: msg, Detail: detail})
		fmt.Fprintln(os.Stdout, string(line))
		return
	}
	text := msg
	if detail != "" {
		text = msg + ": " + detail
	}
	fmt.Println(color(text))
}

// PrintError prints an ad hoc error message (not necessarily carrying
// an error Kind); ReportError is used for the exit-coded path.
func PrintError(msg string, args ...interface{}) {
	detail := ""
	if len(args) > 0 {
		detail = fmt.Sprintf("%v", args[0])
	}
	emit("error", Red, msg, detail)
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) { emit("success", Green, msg, "") }

// PrintInfo prints a label/value info line.
func PrintInfo(label, value string) { emit("info", Cyan, label, value) }

// PrintWarning prints a warning message.
func PrintWarning(msg string, args ...interface{}) {
	detail := ""
	if len(args) > 0 {
		detail = fmt.Sprintf("%v", args[0])
	}
	emit("warn", Yellow, msg, detail)
}

// PrintHighlight prints a highlighted status message.
func PrintHighlight(msg string) { emit("info", Magenta, msg, "") }

// ReportError writes the spec's exact error line to stderr — text
// mode: "Error [<code>] (exit=<n>): <detail>"; json mode: a single
// line JSON object with level:"error" — and returns the process exit
// code for err's Kind.
func ReportError(err error) int {
	kind := errors.Internal
	if e, ok := err.(*errors.Error); ok {
		kind = e.Kind
	}
	code := kind.ExitCode()

	_, _, format := snapshot()
	if format == FormatJSON {
		line, _ := json.Marshal(jsonLine{Level: "error", Message: string(kind), Detail: err.Error()})
		fmt.Fprintln(os.Stderr, string(line))
		return code
	}

	fmt.Fprintf(os.Stderr, "Error [%s] (exit=%d): %s\n", kind, code, err.Error())
	return code
}
