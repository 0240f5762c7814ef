package annotations

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter writing to w (stdout when
// nil). Color is enabled for terminals and disabled elsewhere; the
// global color.NoColor override still applies.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		useColor = err == nil && fi.Mode()&os.ModeCharDevice != 0
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// Handle prints events as they occur; usable as a Handler.
func (f *OutputFormatter) Handle(event Event) {
	if out := f.Format(event); out != "" {
		fmt.Fprintln(f.writer, out)
	}
}

// Format converts an event to a human-readable string. Events with no
// display form return "".
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case StatementInvoked:
		return fmt.Sprintf("%s Statement: %v", latency, event.Data["statement"])

	case StatementCompleted:
		return fmt.Sprintf("%s %s Statement done with %s.",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("rows", intData(event.Data, "rows")))

	case StatementFailed:
		return fmt.Sprintf("%s %s Statement failed: %v",
			latency,
			f.colorize("x", color.FgRed),
			event.Data["error"])

	case CollectorSelected:
		return fmt.Sprintf("%s Collector: %v", latency, event.Data["collector"])

	case StrategySelected:
		return fmt.Sprintf("%s Strategy: %v scan=%v", latency,
			event.Data["record"], event.Data["direction"])

	case PushdownApplied:
		return fmt.Sprintf("%s Pushdown: start_skip=%v cancel_on_limit=%v",
			latency, event.Data["start_skip"], event.Data["cancel_on_limit"])

	case SourceIngested:
		return fmt.Sprintf("%s Ingested %v", latency, event.Data["source"])

	case SourceScanned:
		return fmt.Sprintf("%s Scanned %v with %s",
			latency, event.Data["source"],
			f.colorizeCount("records", intData(event.Data, "records")))

	case ScanCancelled:
		return fmt.Sprintf("%s %s Scan cancelled after %s",
			latency,
			f.colorize("!", color.FgYellow),
			f.colorizeCount("records", intData(event.Data, "records")))

	case ErrorBackend, ErrorCompute:
		return fmt.Sprintf("%s %s %v",
			latency, f.colorize("x", color.FgRed), event.Data["error"])
	}
	return ""
}

func (f *OutputFormatter) formatLatency(d time.Duration) string {
	s := fmt.Sprintf("[%8s]", d.Round(time.Microsecond))
	return f.colorize(s, color.FgHiBlack)
}

func (f *OutputFormatter) colorize(s string, attr color.Attribute) string {
	if !f.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

func (f *OutputFormatter) colorizeCount(noun string, n int) string {
	return fmt.Sprintf("%s %s", f.colorize(fmt.Sprintf("%d", n), color.FgCyan), noun)
}

func intData(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
