package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 150.0

	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40
)

// ErrEmptyFrame is returned when there is nothing to draw
var ErrEmptyFrame = errors.New("empty waterfall frame")

// Borders are the margins around the waterfall, in pixels
type Borders struct {
	Top    int // Frequency scale
	Left   int // Time scale
	Bottom int // Information bar
	Right  int
}

// Config controls how a frame is drawn
type Config struct {
	Theme   Theme
	Bounds  *Bounds // Fixed power range, percentile bounds of the frame when nil
	MapSize int

	// RowDuration is the signal time one row covers. When set the vertical
	// scale shows elapsed time, otherwise row numbers.
	RowDuration time.Duration
	Start       time.Time // Time of the oldest row, shown in the info bar when set
	Location    *time.Location

	FontSize float64
	Borders  Borders
}

// Renderer draws waterfall frames: one pixel per bin horizontally, one pixel
// per row vertically, oldest row at the top.
type Renderer struct {
	config Config
	font   *truetype.Font
}

func New(config Config) (*Renderer, error) {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Borders == (Borders{}) {
		config.Borders = Borders{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}

	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: f}, nil
}

// Render draws frame with scales and an information bar
func (r *Renderer) Render(frame *spectrum.Frame) (*image.RGBA, error) {
	if frame == nil || len(frame.Rows) == 0 || len(frame.Rows[0]) == 0 {
		return nil, ErrEmptyFrame
	}

	width, height := len(frame.Rows[0]), len(frame.Rows)
	b := r.config.Borders

	img := image.NewRGBA(image.Rect(0, 0, b.Left+width+b.Right, b.Top+height+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	bounds := FrameBounds(frame)
	if r.config.Bounds != nil {
		bounds = *r.config.Bounds
	}
	cm := NewColorMap(r.config.Theme, bounds, r.config.MapSize)

	ann := r.newAnnotator(img)
	defer ann.Close()

	if err := ann.annotate(frame, width, height); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	area := image.Rect(b.Left, b.Top, b.Left+width, b.Top+height)
	Paint(img, area, frame.Rows, cm)

	return img, nil
}

// Paint draws rows into area of img, clipping whatever does not fit
func Paint(img draw.Image, area image.Rectangle, rows []spectrum.Row, cm *ColorMap) {
	for y, row := range rows {
		py := area.Min.Y + y
		if py >= area.Max.Y {
			return
		}
		for x, p := range row {
			px := area.Min.X + x
			if px >= area.Max.X {
				break
			}
			img.Set(px, py, cm.Color(p))
		}
	}
}

type annotator struct {
	config Config
	img    *image.RGBA
	ctx    *freetype.Context
	face   font.Face
}

func (r *Renderer) newAnnotator(img *image.RGBA) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(r.font)
	ctx.SetFontSize(r.config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	return &annotator{
		config: r.config,
		img:    img,
		ctx:    ctx,
		face: truetype.NewFace(r.font, &truetype.Options{
			Size:    r.config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	return a.face.Close()
}

func (a *annotator) annotate(frame *spectrum.Frame, width, height int) error {
	ops := []struct {
		msg string
		fn  func(*spectrum.Frame, int, int) error
	}{
		{"drawing frequency scale", a.drawFrequencyScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(frame, width, height); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) fontHeight() int {
	m := a.face.Metrics()
	return (m.Ascent + m.Descent).Round()
}

func (a *annotator) drawFrequencyScale(frame *spectrum.Frame, width, _ int) error {
	if frame.SampleRate <= 0 {
		return nil
	}

	lo := frame.CenterFrequency - frame.SampleRate/2
	hi := frame.CenterFrequency + frame.SampleRate/2
	step := niceFrequencyStep(hi-lo, width)
	textY := a.config.Borders.Top - a.fontHeight()/2

	for f := math.Ceil(lo/step) * step; f < hi; f += step {
		x := a.config.Borders.Left + int((f-lo)/(hi-lo)*float64(width))

		for y := a.config.Borders.Top - tickMarkLength; y < a.config.Borders.Top; y++ {
			a.img.Set(x, y, color.Black)
		}

		label := FormatFrequency(f)
		w := font.MeasureString(a.face, label).Round()
		if _, err := a.ctx.DrawString(label, freetype.Pt(x-w/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(_ *spectrum.Frame, _, height int) error {
	rowsPerLabel, label := a.rowLabels(height)
	m := a.face.Metrics()

	for y := 0; y < height; y += rowsPerLabel {
		py := a.config.Borders.Top + y
		for x := a.config.Borders.Left - tickMarkLength; x < a.config.Borders.Left; x++ {
			a.img.Set(x, py, color.Black)
		}

		textY := py + a.fontHeight()/2 - m.Descent.Round()
		if _, err := a.ctx.DrawString(label(y), freetype.Pt(4, textY)); err != nil {
			return err
		}
	}
	return nil
}

// rowLabels picks the label spacing of the vertical scale and a formatter
// for a row offset.
func (a *annotator) rowLabels(height int) (int, func(int) string) {
	target := max(height/8, 20)

	if d := a.config.RowDuration; d > 0 {
		step := niceTimeStep(time.Duration(target) * d)
		rows := max(int(step/d), 1)
		return rows, func(y int) string {
			return (time.Duration(y) * d).Round(time.Millisecond).String()
		}
	}

	rows := int(niceNumber(float64(target)))
	return rows, func(y int) string {
		return fmt.Sprintf("#%d", y)
	}
}

func (a *annotator) drawInfoBar(frame *spectrum.Frame, width, height int) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Centre: %s", FormatFrequency(frame.CenterFrequency))
	if frame.SampleRate > 0 {
		fmt.Fprintf(&sb, "; Span: %s; 1px = %s",
			FormatFrequency(frame.SampleRate), FormatFrequency(frame.SampleRate/float64(width)))
	}
	fmt.Fprintf(&sb, "; Rows: %d", height)
	if !a.config.Start.IsZero() {
		fmt.Fprintf(&sb, "; Start: %s", a.config.Start.In(a.config.Location).Format(time.DateTime))
	}

	m := a.face.Metrics()
	textY := a.img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - m.Descent.Round()

	_, err := a.ctx.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY))
	return err
}

// FormatFrequency formats a frequency with SI prefix, e.g. "2.41 GHz"
func FormatFrequency(f float64) string {
	return humanize.SIWithDigits(f, 3, "Hz")
}

// niceNumber rounds v up to 1, 2 or 5 times a power of ten
func niceNumber(v float64) float64 {
	if v <= 0 {
		return 1
	}

	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*exp >= v {
			return m * exp
		}
	}
	return 10 * exp
}

// niceFrequencyStep returns a label spacing of about pixelsPerLabel for a
// span drawn over width pixels.
func niceFrequencyStep(span float64, width int) float64 {
	labels := max(float64(width)/pixelsPerLabel, 2)
	return niceNumber(span / labels)
}

var timeSteps = []time.Duration{
	time.Millisecond, 2 * time.Millisecond, 5 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 50 * time.Millisecond,
	100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond,
	time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
	time.Minute, 5 * time.Minute, 10 * time.Minute, 30 * time.Minute, time.Hour,
}

func niceTimeStep(d time.Duration) time.Duration {
	for _, step := range timeSteps {
		if step >= d {
			return step
		}
	}
	return timeSteps[len(timeSteps)-1]
}
