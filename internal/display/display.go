package display

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/render"
)

// Display runs the live waterfall in the terminal. The notification methods
// are safe to call from the acquisition goroutine.
type Display struct {
	program *tea.Program
}

// New creates a Display drawing source. It takes over the terminal only when
// Run is called. Options are passed on to the bubbletea program.
func New(ctx context.Context, source FrameSource, refresh time.Duration, theme render.Theme, options ...tea.ProgramOption) *Display {
	model := NewModel(source, refresh, theme)
	options = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, options...)
	return &Display{
		program: tea.NewProgram(model, options...),
	}
}

// Run blocks until the user quits or ctx is cancelled. Cancellation is not an
// error.
func (d *Display) Run() error {
	_, err := d.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Tune blocks until Run has started, so it must not be called before Run on
// the goroutine that will call it.
func (d *Display) Tune(frequency float64) {
	d.program.Send(TuneMsg(frequency))
}

func (d *Display) Detection(ev detect.Event) {
	d.program.Send(DetectionMsg(ev))
}

func (d *Display) CaptureStarted(frequency float64) {
	d.program.Send(CaptureStartMsg(frequency))
}

func (d *Display) CaptureFinished(s *capture.Session, err error) {
	d.program.Send(CaptureMsg{Session: s, Err: err})
}
