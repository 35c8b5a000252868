package render

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/go-pdf/fpdf"
)

// ReportTitle heads the first page and the document metadata.
const ReportTitle = "Chemical Equipment Analytics Report"

const (
	pageMargin  = 18.0
	chartWidth  = 160.0
	captionSize = 9.0
)

type rgb struct{ r, g, b int }

var (
	rgbTitle   = rgb{14, 17, 23}
	rgbAccent  = rgb{6, 182, 212}
	rgbLabel   = rgb{240, 240, 240}
	rgbBorder  = rgb{204, 204, 204}
	rgbStripe  = rgb{249, 249, 249}
	rgbCaption = rgb{128, 128, 128}
	rgbWhite   = rgb{255, 255, 255}
	rgbBlack   = rgb{0, 0, 0}
)

// doc wraps fpdf with the report's styling helpers.
type doc struct {
	*fpdf.Fpdf
	tr func(string) string
}

func (d *doc) fill(c rgb)   { d.SetFillColor(c.r, c.g, c.b) }
func (d *doc) ink(c rgb)    { d.SetTextColor(c.r, c.g, c.b) }
func (d *doc) stroke(c rgb) { d.SetDrawColor(c.r, c.g, c.b) }

func (d *doc) heading(s string) {
	d.SetFont("Helvetica", "B", 15)
	d.ink(rgbAccent)
	d.CellFormat(0, 9, d.tr(s), "", 1, "L", false, 0, "")
	d.Ln(2)
}

func buildPDF(name string, generatedAt time.Time, s core.Summary, images [][]byte) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(ReportTitle, true)
	pdf.SetSubject(name, true)
	pdf.SetCreator("equipment-analytics", true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)

	d := &doc{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		d.SetY(-12)
		d.SetFont("Helvetica", "I", 8)
		d.ink(rgbCaption)
		d.CellFormat(0, 6, "Page "+strconv.Itoa(d.PageNo()), "", 0, "C", false, 0, "")
	})

	d.AddPage()
	d.SetFont("Helvetica", "B", 22)
	d.ink(rgbTitle)
	d.CellFormat(0, 14, ReportTitle, "", 1, "C", false, 0, "")
	d.Ln(6)

	d.infoTable(name, generatedAt, s)
	d.Ln(10)
	d.heading("Key Performance Indicators")
	d.kpiTable(s)

	if err := d.chartPages(images); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *doc) infoTable(name string, generatedAt time.Time, s core.Summary) {
	rows := [][2]string{
		{"Dataset:", name},
		{"Generated:", generatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
		{"Total Equipment:", strconv.Itoa(s.TotalEquipment)},
	}

	d.stroke(rgbBorder)
	d.SetLineWidth(0.3)
	for _, row := range rows {
		d.SetFont("Helvetica", "B", 11)
		d.ink(rgbBlack)
		d.fill(rgbLabel)
		d.CellFormat(50, 10, row[0], "1", 0, "L", true, 0, "")
		d.SetFont("Helvetica", "", 11)
		d.CellFormat(100, 10, d.tr(row[1]), "1", 1, "L", false, 0, "")
	}
}

func (d *doc) kpiTable(s core.Summary) {
	rows := [][2]string{
		{"Total Equipment", strconv.Itoa(s.TotalEquipment)},
		{"Average Flowrate", fmt.Sprintf("%.2f units", s.AverageFlowrate)},
		{"Average Pressure", fmt.Sprintf("%.2f PSI", s.AveragePressure)},
		{"Average Temperature", fmt.Sprintf("%.2f °F", s.AverageTemperature)},
	}

	d.stroke(rgbBlack)
	d.SetLineWidth(0.3)

	d.SetFont("Helvetica", "B", 12)
	d.ink(rgbWhite)
	d.fill(rgbAccent)
	d.CellFormat(75, 11, "Metric", "1", 0, "C", true, 0, "")
	d.CellFormat(75, 11, "Value", "1", 1, "C", true, 0, "")

	d.SetFont("Helvetica", "", 11)
	d.ink(rgbBlack)
	for i, row := range rows {
		if i%2 == 0 {
			d.fill(rgbWhite)
		} else {
			d.fill(rgbStripe)
		}
		d.CellFormat(75, 10, row[0], "1", 0, "C", true, 0, "")
		d.CellFormat(75, 10, d.tr(row[1]), "1", 1, "C", true, 0, "")
	}
}

// chartPages places the figures two to a page, each with a heading and
// caption.
func (d *doc) chartPages(images [][]byte) error {
	_, pageHeight := d.GetPageSize()
	opts := fpdf.ImageOptions{ImageType: "PNG"}

	d.AddPage()
	for i, ch := range charts {
		info := d.RegisterImageOptionsReader(ch.Name, opts, bytes.NewReader(images[i]))
		if err := d.Error(); err != nil {
			return fmt.Errorf("embed chart %s: %w", ch.Name, err)
		}
		height := chartWidth * info.Height() / info.Width()

		if d.GetY()+height+24 > pageHeight-pageMargin {
			d.AddPage()
		}

		d.heading(ch.Heading)
		pageWidth, _ := d.GetPageSize()
		x := (pageWidth - chartWidth) / 2
		y := d.GetY()
		d.ImageOptions(ch.Name, x, y, chartWidth, height, false, opts, 0, "")
		d.SetY(y + height + 2)

		d.SetFont("Helvetica", "I", captionSize)
		d.ink(rgbCaption)
		d.CellFormat(0, 6, d.tr(ch.Caption), "", 1, "C", false, 0, "")
		d.Ln(6)
	}
	return d.Error()
}
