package render

import (
	"bytes"
	"fmt"
	"math"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// Metric colors shared by the per-type, overall and radar charts.
const (
	colorFlowrate    = "#06b6d4"
	colorPressure    = "#14b8a6"
	colorTemperature = "#3b82f6"
	colorText        = "#0e1117"
	colorGrid        = "#d0d0d0"
	colorMuted       = "#6b7280"
)

// distributionPalette runs from dark blue to green.
var distributionPalette = []string{
	"#3b528b", "#31688e", "#287c8e", "#21918c", "#20a486",
	"#35b779", "#5ec962", "#90d743", "#c8e020",
}

// sharePalette is a qualitative palette for the donut wedges.
var sharePalette = []string{
	"#8dd3c7", "#ffffb3", "#bebada", "#fb8072", "#80b1d3", "#fdb462",
	"#b3de69", "#fccde5", "#d9d9d9", "#bc80bd", "#ccebc5", "#ffed6f",
}

// chart describes one figure in the report.
type chart struct {
	Name    string
	Heading string
	Caption string
	draw    func(c *canvas, s core.Summary)
}

// charts lists the report figures in page order.
var charts = []chart{
	{
		Name:    "type_distribution",
		Heading: "Equipment Type Distribution",
		Caption: "Figure 1: Count of equipment by type",
		draw:    drawTypeDistribution,
	},
	{
		Name:    "type_share",
		Heading: "Equipment Share by Type",
		Caption: "Figure 2: Percentage distribution of equipment types",
		draw:    drawTypeShare,
	},
	{
		Name:    "avg_metrics_per_type",
		Heading: "Average Metrics per Equipment Type",
		Caption: "Figure 3: Comparison of average flowrate, pressure, and temperature by equipment type",
		draw:    drawMetricsPerType,
	},
	{
		Name:    "overall_avg_metrics",
		Heading: "Overall Average Metrics",
		Caption: "Figure 4: Overall system average metrics",
		draw:    drawOverallMetrics,
	},
	{
		Name:    "performance_profile",
		Heading: "Equipment Performance Profile",
		Caption: "Figure 5: Multi-metric performance fingerprint (normalized)",
		draw:    drawPerformanceProfile,
	},
}

// canvas wraps a gg context with the report's fonts.
type canvas struct {
	dc    *gg.Context
	fonts *fontSet
	faces map[float64]font.Face
	w, h  float64
}

func newCanvas(width, height int, fonts *fontSet) *canvas {
	dc := gg.NewContext(width, height)
	dc.SetHexColor("#ffffff")
	dc.Clear()
	return &canvas{
		dc:    dc,
		fonts: fonts,
		faces: make(map[float64]font.Face),
		w:     float64(width),
		h:     float64(height),
	}
}

func (c *canvas) font(size float64) {
	f, ok := c.faces[size]
	if !ok {
		f = c.fonts.face(size)
		c.faces[size] = f
	}
	c.dc.SetFontFace(f)
}

func (c *canvas) text(s string, size float64, hex string, x, y, ax, ay float64) {
	c.font(size)
	c.dc.SetHexColor(hex)
	c.dc.DrawStringAnchored(s, x, y, ax, ay)
}

func (c *canvas) title(s string) {
	c.text(s, 28, colorText, c.w/2, 40, 0.5, 0.5)
}

func (c *canvas) png() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// emptyNotice marks a chart that has no equipment to show.
func (c *canvas) emptyNotice() {
	c.text("No equipment data", 20, colorMuted, c.w/2, c.h/2, 0.5, 0.5)
}

// plot is the rectangle inside a chart's axes.
type plot struct {
	left, top, right, bottom float64
	lo, hi, step             float64
}

func (p plot) y(v float64) float64 {
	return p.bottom - (v-p.lo)/(p.hi-p.lo)*(p.bottom-p.top)
}

// barSeries is one set of bars. Bar i is painted with Colors[i%len(Colors)].
type barSeries struct {
	Name   string
	Colors []string
	Values []float64
}

type barChart struct {
	Title      string
	XLabel     string
	YLabel     string
	Labels     []string
	Series     []barSeries
	ShowValues bool
	Format     string
}

func (c *canvas) bars(bc barChart) {
	c.title(bc.Title)
	if len(bc.Labels) == 0 {
		c.emptyNotice()
		return
	}

	lo, hi := 0.0, 0.0
	for _, s := range bc.Series {
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	p := plot{left: 110, top: 90, right: c.w - 40, bottom: c.h - 130}
	p.lo, p.hi, p.step = niceRange(lo, hi*1.1, 5)

	c.axes(p, bc.XLabel, bc.YLabel)

	dc := c.dc
	slot := (p.right - p.left) / float64(len(bc.Labels))
	groupWidth := slot * 0.7
	barWidth := groupWidth / float64(len(bc.Series))
	zero := p.y(0)

	for i, label := range bc.Labels {
		groupLeft := p.left + slot*float64(i) + (slot-groupWidth)/2
		for j, s := range bc.Series {
			v := s.Values[i]
			x := groupLeft + barWidth*float64(j)
			top, height := p.y(v), zero-p.y(v)
			if height < 0 {
				top, height = zero, -height
			}
			dc.DrawRectangle(x, top, barWidth, height)
			dc.SetHexColor(s.Colors[i%len(s.Colors)])
			dc.FillPreserve()
			dc.SetHexColor("#000000")
			dc.SetLineWidth(1.2)
			dc.Stroke()

			if bc.ShowValues {
				c.text(fmt.Sprintf(bc.Format, v), 14, colorText, x+barWidth/2, top-8, 0.5, 0)
			}
		}
		c.xLabel(label, p.left+slot*(float64(i)+0.5), p.bottom+10, slot, len(bc.Labels))
	}

	if len(bc.Series) > 1 {
		c.legend(bc.Series, p.left+12, p.top+12)
	}
}

// axes draws the dashed y grid with tick labels, the axis lines and titles.
func (c *canvas) axes(p plot, xLabel, yLabel string) {
	dc := c.dc
	step := p.step

	dc.SetLineWidth(1)
	for v := p.lo; v <= p.hi+step/2; v += step {
		y := p.y(v)
		dc.SetDash(4, 4)
		dc.SetHexColor(colorGrid)
		dc.DrawLine(p.left, y, p.right, y)
		dc.Stroke()
		dc.SetDash()
		c.text(formatTick(v, step), 14, colorText, p.left-10, y, 1, 0.5)
	}

	dc.SetHexColor("#000000")
	dc.SetLineWidth(1.5)
	dc.DrawLine(p.left, p.top, p.left, p.bottom)
	dc.DrawLine(p.left, p.y(0), p.right, p.y(0))
	dc.Stroke()

	c.text(xLabel, 18, colorText, (p.left+p.right)/2, c.h-20, 0.5, 0)

	dc.Push()
	dc.RotateAbout(-math.Pi/2, 30, (p.top+p.bottom)/2)
	c.text(yLabel, 18, colorText, 30, (p.top+p.bottom)/2, 0.5, 0.5)
	dc.Pop()
}

// xLabel draws a category label, tilted when the labels would collide.
func (c *canvas) xLabel(label string, x, y, slot float64, n int) {
	c.font(14)
	w, _ := c.dc.MeasureString(label)
	if w < slot*0.9 && n <= 8 {
		c.text(label, 14, colorText, x, y, 0.5, 1)
		return
	}
	c.dc.Push()
	c.dc.RotateAbout(-math.Pi/4, x, y)
	c.text(label, 14, colorText, x, y, 1, 0.5)
	c.dc.Pop()
}

func (c *canvas) legend(series []barSeries, x, y float64) {
	dc := c.dc
	for i, s := range series {
		rowY := y + float64(i)*26
		dc.DrawRectangle(x, rowY, 18, 18)
		dc.SetHexColor(s.Colors[0])
		dc.FillPreserve()
		dc.SetHexColor("#000000")
		dc.SetLineWidth(1)
		dc.Stroke()
		c.text(s.Name, 14, colorText, x+26, rowY+9, 0, 0.5)
	}
}

func drawTypeDistribution(c *canvas, s core.Summary) {
	types := s.Types()
	counts := make([]float64, len(types))
	for i, t := range types {
		counts[i] = float64(s.TypeDistribution[t])
	}
	c.bars(barChart{
		Title:      "Equipment Type Distribution",
		XLabel:     "Equipment Type",
		YLabel:     "Count",
		Labels:     types,
		Series:     []barSeries{{Name: "Count", Colors: spread(distributionPalette, len(types)), Values: counts}},
		ShowValues: true,
		Format:     "%.0f",
	})
}

func drawMetricsPerType(c *canvas, s core.Summary) {
	types := s.Types()
	flow := make([]float64, len(types))
	press := make([]float64, len(types))
	temp := make([]float64, len(types))
	for i, t := range types {
		avg := s.TypeAverages[t]
		flow[i], press[i], temp[i] = avg.AvgFlowrate, avg.AvgPressure, avg.AvgTemperature
	}
	c.bars(barChart{
		Title:  "Average Metrics per Equipment Type",
		XLabel: "Equipment Type",
		YLabel: "Average Value",
		Labels: types,
		Series: []barSeries{
			{Name: "Avg Flowrate", Colors: []string{colorFlowrate}, Values: flow},
			{Name: "Avg Pressure", Colors: []string{colorPressure}, Values: press},
			{Name: "Avg Temperature", Colors: []string{colorTemperature}, Values: temp},
		},
	})
}

func drawOverallMetrics(c *canvas, s core.Summary) {
	c.bars(barChart{
		Title:  "Overall Average Metrics Comparison",
		XLabel: "Metrics",
		YLabel: "Average Value",
		Labels: []string{"Flowrate", "Pressure", "Temperature"},
		Series: []barSeries{{
			Name:   "Average",
			Colors: []string{colorFlowrate, colorPressure, colorTemperature},
			Values: []float64{s.AverageFlowrate, s.AveragePressure, s.AverageTemperature},
		}},
		ShowValues: true,
		Format:     "%.2f",
	})
}

func drawTypeShare(c *canvas, s core.Summary) {
	c.title("Equipment Share by Type")
	types := s.Types()
	if len(types) == 0 || s.TotalEquipment == 0 {
		c.emptyNotice()
		return
	}

	dc := c.dc
	colors := spread(sharePalette, len(types))
	r := math.Min(c.w*0.5, c.h-120) / 2
	cx, cy := c.w*0.38, c.h/2+20
	total := float64(s.TotalEquipment)

	start := -math.Pi / 2
	for i, t := range types {
		span := 2 * math.Pi * float64(s.TypeDistribution[t]) / total
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, r, start, start+span)
		dc.ClosePath()
		dc.SetHexColor(colors[i])
		dc.FillPreserve()
		dc.SetHexColor("#ffffff")
		dc.SetLineWidth(2)
		dc.Stroke()
		start += span
	}

	dc.DrawCircle(cx, cy, r*0.6)
	dc.SetHexColor("#ffffff")
	dc.Fill()

	start = -math.Pi / 2
	for _, t := range types {
		share := float64(s.TypeDistribution[t]) / total
		mid := start + math.Pi*share
		c.text(fmt.Sprintf("%.1f%%", share*100), 14, colorText,
			cx+r*0.8*math.Cos(mid), cy+r*0.8*math.Sin(mid), 0.5, 0.5)
		start += 2 * math.Pi * share
	}

	c.text("Total", 18, colorMuted, cx, cy-14, 0.5, 0.5)
	c.text(fmt.Sprintf("%d", s.TotalEquipment), 24, colorText, cx, cy+16, 0.5, 0.5)

	lx, ly := c.w*0.72, cy-float64(len(types))*13
	for i, t := range types {
		rowY := ly + float64(i)*26
		dc.DrawRectangle(lx, rowY, 18, 18)
		dc.SetHexColor(colors[i])
		dc.Fill()
		c.text(fmt.Sprintf("%s (%d)", t, s.TypeDistribution[t]), 14, colorText, lx+26, rowY+9, 0, 0.5)
	}
}

func drawPerformanceProfile(c *canvas, s core.Summary) {
	c.title("Equipment Performance Profile (Normalized Metrics)")

	labels := []string{"Flowrate", "Pressure", "Temperature"}
	values := []float64{s.AverageFlowrate, s.AveragePressure, s.AverageTemperature}
	normalized := normalize(values)

	dc := c.dc
	cx, cy := c.w/2, c.h/2+30
	r := math.Min(c.w, c.h-120) / 2 * 0.75
	n := len(labels)
	angle := func(i int) float64 { return -math.Pi/2 + 2*math.Pi*float64(i)/float64(n) }
	point := func(i int, pct float64) (float64, float64) {
		return cx + r*pct/100*math.Cos(angle(i)), cy + r*pct/100*math.Sin(angle(i))
	}

	dc.SetLineWidth(1)
	dc.SetDash(4, 4)
	dc.SetHexColor(colorGrid)
	for ring := 20.0; ring <= 100; ring += 20 {
		for i := 0; i < n; i++ {
			x, y := point(i, ring)
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
		dc.Stroke()
	}
	for i := 0; i < n; i++ {
		x, y := point(i, 100)
		dc.DrawLine(cx, cy, x, y)
		dc.Stroke()
	}
	dc.SetDash()

	for i, label := range labels {
		x, y := point(i, 118)
		c.text(label, 16, colorText, x, y, 0.5, 0.5)
	}

	for i := 0; i < n; i++ {
		x, y := point(i, normalized[i])
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
	dc.SetRGBA(6/255.0, 182/255.0, 212/255.0, 0.25)
	dc.FillPreserve()
	dc.SetHexColor(colorFlowrate)
	dc.SetLineWidth(2)
	dc.Stroke()

	for i, v := range values {
		x, y := point(i, normalized[i])
		dc.DrawCircle(x, y, 5)
		dc.SetHexColor(colorFlowrate)
		dc.Fill()
		lx, ly := point(i, normalized[i]+10)
		c.text(fmt.Sprintf("%.1f", v), 14, colorText, lx, ly, 0.5, 0.5)
	}
}

// normalize scales values to 0..100 against the largest. Negative values
// are drawn at the center.
func normalize(values []float64) []float64 {
	highest := 0.0
	for _, v := range values {
		highest = math.Max(highest, v)
	}
	if highest <= 0 {
		highest = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Max(0, v/highest*100)
	}
	return out
}

// spread picks n colors evenly across palette, cycling when n exceeds it.
func spread(palette []string, n int) []string {
	if n <= 0 {
		return []string{palette[0]}
	}
	out := make([]string, n)
	if n > len(palette) {
		for i := range out {
			out[i] = palette[i%len(palette)]
		}
		return out
	}
	for i := range out {
		idx := 0
		if n > 1 {
			idx = i * (len(palette) - 1) / (n - 1)
		}
		out[i] = palette[idx]
	}
	return out
}

// niceRange widens [lo, hi] to multiples of a round step so that about
// ticks intervals cover it.
func niceRange(lo, hi float64, ticks int) (float64, float64, float64) {
	if hi <= lo {
		hi = lo + 1
	}
	step := niceNumber((hi - lo) / float64(ticks))
	return math.Floor(lo/step) * step, math.Ceil(hi/step) * step, step
}

func niceNumber(x float64) float64 {
	exp := math.Floor(math.Log10(x))
	frac := x / math.Pow(10, exp)
	var nice float64
	switch {
	case frac <= 1:
		nice = 1
	case frac <= 2:
		nice = 2
	case frac <= 5:
		nice = 5
	default:
		nice = 10
	}
	return nice * math.Pow(10, exp)
}

func formatTick(v, step float64) string {
	if math.Abs(v) < step/1e6 {
		v = 0
	}
	if step >= 1 {
		return fmt.Sprintf("%.0f", v)
	}
	decimals := int(math.Ceil(-math.Log10(step)))
	return fmt.Sprintf("%.*f", decimals, v)
}
