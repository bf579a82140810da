// Package report renders finished roasts as PDF documents.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/JakeFAU/roastd/internal/roast"
)

type rgb struct{ r, g, b int }

var severityColors = map[roast.Severity]rgb{
	roast.SeverityCritical: {239, 68, 68},
	roast.SeverityHigh:     {249, 115, 22},
	roast.SeverityMedium:   {234, 179, 8},
	roast.SeverityLow:      {59, 130, 246},
}

var (
	neutral  = rgb{107, 114, 128}
	ink      = rgb{17, 24, 39}
	severity = []roast.Severity{
		roast.SeverityCritical,
		roast.SeverityHigh,
		roast.SeverityMedium,
		roast.SeverityLow,
	}
)

const (
	pageMargin = 15.0
	lineHeight = 6.0
)

// Renderer produces A4 PDF reports. It holds no state and is safe for
// concurrent use.
type Renderer struct {
	Title string
}

// NewRenderer returns a Renderer with the default title.
func NewRenderer() *Renderer {
	return &Renderer{Title: "Karen's Website Roast"}
}

// Render lays out the critique: header, rating, summary, flaws grouped by
// severity, then positives.
func (r *Renderer) Render(in roast.ReportInput) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(r.Title, true)
	pdf.SetCreator("roastd", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		setText(pdf, neutral)
		pdf.CellFormat(0, 8, fmt.Sprintf("Session %s - page %d", in.SessionID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	a := in.Analysis
	pdf.SetFont("Helvetica", "B", 22)
	setText(pdf, ink)
	pdf.CellFormat(0, 12, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	setText(pdf, neutral)
	pdf.MultiCell(0, 5, tr(in.URL), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 16)
	setText(pdf, ratingColor(a.OverallRating))
	pdf.CellFormat(0, 10, fmt.Sprintf("Overall rating: %d/10", a.OverallRating), "", 1, "L", false, 0, "")
	if in.Degraded {
		pdf.SetFont("Helvetica", "I", 9)
		setText(pdf, neutral)
		pdf.MultiCell(0, 5, "The model reply could not be parsed; this is the standard critique.", "", "L", false)
	}
	pdf.Ln(2)

	if a.KarenOpeningLine != "" {
		pdf.SetFont("Helvetica", "I", 12)
		setText(pdf, ink)
		pdf.MultiCell(0, lineHeight, tr("\"" + a.KarenOpeningLine + "\""), "", "L", false)
		pdf.Ln(2)
	}

	heading(pdf, tr, "Summary")
	body(pdf, tr, a.RoastSummary)

	heading(pdf, tr, fmt.Sprintf("Design flaws (%d)", len(a.DesignFlaws)))
	if len(a.DesignFlaws) == 0 {
		body(pdf, tr, "No flaws listed.")
	}
	for _, sev := range severity {
		for _, flaw := range a.DesignFlaws {
			if flaw.Severity == sev {
				writeFlaw(pdf, tr, flaw)
			}
		}
	}
	for _, flaw := range a.DesignFlaws {
		if !flaw.Severity.Valid() {
			writeFlaw(pdf, tr, flaw)
		}
	}

	if len(a.PositiveAspects) > 0 {
		heading(pdf, tr, "What actually works")
		for _, p := range a.PositiveAspects {
			body(pdf, tr, "+ "+p)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout report: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the attachment name used for a session's report.
func Filename(sessionID string) string {
	return "karens-roast-" + sessionID + ".pdf"
}

func writeFlaw(pdf *fpdf.Fpdf, tr func(string) string, flaw roast.DesignFlaw) {
	c, ok := severityColors[flaw.Severity]
	if !ok {
		c = neutral
	}
	pdf.SetFillColor(c.r, c.g, c.b)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 8)
	label := strings.ToUpper(string(flaw.Severity))
	pdf.CellFormat(pdf.GetStringWidth(label)+6, 5, label, "", 0, "C", true, 0, "")
	pdf.SetX(pdf.GetX() + 2)
	pdf.SetFont("Helvetica", "B", 11)
	setText(pdf, ink)
	pdf.MultiCell(0, 5, tr(flaw.Issue), "", "L", false)

	pdf.SetFont("Helvetica", "", 10)
	if flaw.Roast != "" {
		pdf.MultiCell(0, 5, tr(flaw.Roast), "", "L", false)
	}
	if flaw.Recommendation != "" {
		setText(pdf, neutral)
		pdf.MultiCell(0, 5, tr("Fix: "+flaw.Recommendation), "", "L", false)
	}
	pdf.Ln(3)
}

func heading(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 14)
	setText(pdf, ink)
	pdf.CellFormat(0, 8, tr(text), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func body(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont("Helvetica", "", 11)
	setText(pdf, ink)
	pdf.MultiCell(0, lineHeight, tr(text), "", "L", false)
	pdf.Ln(1)
}

func setText(pdf *fpdf.Fpdf, c rgb) {
	pdf.SetTextColor(c.r, c.g, c.b)
}

func ratingColor(rating int) rgb {
	switch {
	case rating <= 3:
		return severityColors[roast.SeverityCritical]
	case rating <= 5:
		return severityColors[roast.SeverityHigh]
	case rating <= 7:
		return severityColors[roast.SeverityMedium]
	default:
		return rgb{34, 197, 94}
	}
}
