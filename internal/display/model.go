package display

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/render"
	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
)

const (
	DefaultRefresh = 200 * time.Millisecond

	headerLines = 2
	footerLines = 4 // recent detections plus help
	recentSize  = footerLines - 1
	cell        = "█"
)

// FrameSource provides the waterfall to draw, *spectrum.Waterfall satisfies it
type FrameSource interface {
	Frame() *spectrum.Frame
}

// Messages sent into the program by the acquisition loop
type (
	TuneMsg      float64
	DetectionMsg detect.Event
	CaptureMsg   struct {
		Session *capture.Session
		Err     error
	}
	CaptureStartMsg float64
)

type tickMsg time.Time

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	strongStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f"))
	weakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd75f"))
	recordStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#d70000"))
)

// Model is the bubbletea model of the live waterfall: a status header, the
// waterfall scaled to the terminal and the most recent detections.
type Model struct {
	source  FrameSource
	refresh time.Duration
	theme   render.Theme

	width  int
	height int

	frame  *spectrum.Frame
	bounds *render.SmoothBounds
	styles map[color.Color]lipgloss.Style

	frequency  float64
	detections int
	captures   int
	capturing  float64 // Frequency of the capture in progress, 0 when idle
	recent     []detect.Event
	lastError  string
}

// NewModel creates a Model redrawing from source every refresh
func NewModel(source FrameSource, refresh time.Duration, theme render.Theme) *Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}

	return &Model{
		source:  source,
		refresh: refresh,
		theme:   theme,
		width:   80,
		height:  24,
		bounds:  render.NewSmoothBounds(0.2),
		styles:  make(map[color.Color]lipgloss.Style),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.frame = m.source.Frame()
		if m.frame != nil && len(m.frame.Rows) > 0 {
			m.bounds.Update(render.FrameBounds(m.frame))
		}
		return m, m.tick()

	case TuneMsg:
		m.frequency = float64(msg)

	case DetectionMsg:
		m.detections++
		m.recent = append(m.recent, detect.Event(msg))
		if len(m.recent) > recentSize {
			m.recent = m.recent[len(m.recent)-recentSize:]
		}

	case CaptureStartMsg:
		m.capturing = float64(msg)

	case CaptureMsg:
		m.capturing = 0
		m.captures++
		m.lastError = ""
		if msg.Err != nil {
			m.lastError = fmt.Sprintf("capture %s: %s", filepath.Base(msg.Session.Path), msg.Err.Error())
		}
	}

	return m, nil
}

func (m *Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.header())
	sb.WriteString("\n")

	rows := max(m.height-headerLines-footerLines, 1)
	for _, line := range m.waterfall(m.width, rows) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	for i := 0; i < recentSize; i++ {
		if i < len(m.recent) {
			sb.WriteString(m.eventLine(m.recent[len(m.recent)-1-i]))
		}
		sb.WriteString("\n")
	}

	help := "q quit"
	if m.lastError != "" {
		help = m.lastError
	}
	sb.WriteString(labelStyle.Render(help))

	return sb.String()
}

func (m *Model) header() string {
	status := fmt.Sprintf("%s  %s %s  %s %d  %s %d",
		titleStyle.Render("RF SENTINEL"),
		labelStyle.Render("tuned"), render.FormatFrequency(m.frequency),
		labelStyle.Render("detections"), m.detections,
		labelStyle.Render("captures"), m.captures)

	if m.capturing != 0 {
		status += "  " + recordStyle.Render(" REC "+render.FormatFrequency(m.capturing)+" ")
	}

	b := m.bounds.Current()
	scale := labelStyle.Render(fmt.Sprintf("%.0f..%.0f dB", b.Min, b.Max))
	return status + "\n" + scale
}

func (m *Model) eventLine(ev detect.Event) string {
	style := weakStyle
	if ev.Strength == detect.Strong {
		style = strongStyle
	}
	return fmt.Sprintf("%s %s %s %.1f dBm",
		labelStyle.Render(ev.Timestamp.Format(time.TimeOnly)),
		style.Render(fmt.Sprintf("%-6s", ev.Strength)),
		render.FormatFrequency(ev.Frequency),
		ev.EstimatedPowerDBm)
}

// waterfall renders the newest rows of the frame, newest at the bottom,
// with bins merged to fit width columns.
func (m *Model) waterfall(width, height int) []string {
	lines := make([]string, height)
	if m.frame == nil || len(m.frame.Rows) == 0 || width <= 0 {
		return lines
	}

	rows := m.frame.Rows
	if len(rows) > height {
		rows = rows[len(rows)-height:]
	}

	cm := render.NewColorMap(m.theme, m.bounds.Current(), 32)
	offset := height - len(rows)

	var sb strings.Builder
	for y, row := range rows {
		sb.Reset()
		for _, p := range resample(row, width) {
			sb.WriteString(m.style(cm.Color(p)).Render(cell))
		}
		lines[offset+y] = sb.String()
	}
	return lines
}

func (m *Model) style(c color.Color) lipgloss.Style {
	if s, ok := m.styles[c]; ok {
		return s
	}

	r, g, b, _ := c.RGBA()
	s := lipgloss.NewStyle().Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)))
	m.styles[c] = s
	return s
}

// resample maps a row onto width columns keeping the peak of every group of
// bins, bins are repeated when there are fewer of them than columns.
func resample(row spectrum.Row, width int) spectrum.Row {
	out := make(spectrum.Row, width)
	n := len(row)
	if n == 0 {
		return out
	}

	for i := range out {
		lo := i * n / width
		hi := max((i+1)*n/width, lo+1)

		out[i] = row[lo]
		for _, p := range row[lo+1 : min(hi, n)] {
			out[i] = max(out[i], p)
		}
	}
	return out
}
