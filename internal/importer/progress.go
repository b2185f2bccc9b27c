package importer

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Observer receives import progress. Implementations must be cheap; the
// importer calls Progress once per committed batch.
type Observer interface {
	Start(total int)
	Progress(processed, total int, rate float64, eta time.Duration)
	Done(processed int, elapsed time.Duration)
}

// NopObserver discards all progress events.
type NopObserver struct{}

func (NopObserver) Start(int)                                 {}
func (NopObserver) Progress(int, int, float64, time.Duration) {}
func (NopObserver) Done(int, time.Duration)                   {}

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
)

// StderrObserver prints progress to stderr: an in-place line on a
// terminal, plain lines otherwise.
type StderrObserver struct {
	tty bool
}

// NewStderrObserver creates the default observer.
func NewStderrObserver() *StderrObserver {
	return &StderrObserver{tty: isatty.IsTerminal(os.Stderr.Fd())}
}

func (o *StderrObserver) Start(total int) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "importing %d entries\n", total)
	}
}

func (o *StderrObserver) Progress(processed, total int, rate float64, eta time.Duration) {
	var line string
	if total > 0 {
		line = fmt.Sprintf("  %d/%d entries  %.0f/s  eta %s", processed, total, rate, eta.Round(time.Second))
	} else {
		line = fmt.Sprintf("  %d entries  %.0f/s", processed, rate)
	}
	if o.tty {
		fmt.Fprintf(os.Stderr, "\r\033[K%s", progressStyle.Render(line))
	} else {
		fmt.Fprintln(os.Stderr, line)
	}
}

func (o *StderrObserver) Done(processed int, elapsed time.Duration) {
	if o.tty {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	fmt.Fprintln(os.Stderr, doneStyle.Render(
		fmt.Sprintf("imported %d entries in %s", processed, elapsed.Round(time.Millisecond))))
}
