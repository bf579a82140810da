package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/roastd/internal/roast"
)

// Defaults applied to fields the model leaves out.
const (
	DefaultRating      = 5
	DefaultSummary     = "This website is a disaster."
	DefaultOpeningLine = "Oh honey, where do I even start with this mess..."
)

// ErrNoJSON is returned when a reply holds no balanced JSON object.
var ErrNoJSON = errors.New("no JSON object in model reply")

type looseBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type looseFlaw struct {
	Issue          string   `json:"issue"`
	Severity       string   `json:"severity"`
	Coordinates    looseBox `json:"coordinates"`
	Roast          string   `json:"roast"`
	Recommendation string   `json:"recommendation"`
}

type looseResult struct {
	OverallRating    any         `json:"overall_rating"`
	RoastSummary     string      `json:"roast_summary"`
	KarenOpeningLine string      `json:"karen_opening_line"`
	DesignFlaws      []looseFlaw `json:"design_flaws"`
	PositiveAspects  []string    `json:"positive_aspects"`
}

// Parse extracts the first balanced JSON object from a free-text reply and
// normalizes it into an AnalysisResult.
func Parse(reply string) (roast.AnalysisResult, error) {
	span, ok := extractObject(reply)
	if !ok {
		return roast.AnalysisResult{}, ErrNoJSON
	}
	var raw looseResult
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return roast.AnalysisResult{}, fmt.Errorf("decode model reply: %w", err)
	}

	out := roast.AnalysisResult{
		OverallRating:    normalizeRating(raw.OverallRating),
		RoastSummary:     orDefault(raw.RoastSummary, DefaultSummary),
		KarenOpeningLine: orDefault(raw.KarenOpeningLine, DefaultOpeningLine),
		DesignFlaws:      make([]roast.DesignFlaw, 0, len(raw.DesignFlaws)),
		PositiveAspects:  make([]string, 0, len(raw.PositiveAspects)),
	}
	for _, f := range raw.DesignFlaws {
		out.DesignFlaws = append(out.DesignFlaws, roast.DesignFlaw{
			Issue:    f.Issue,
			Severity: normalizeSeverity(f.Severity),
			Coordinates: roast.BoundingBox{
				X:      int(math.Round(f.Coordinates.X)),
				Y:      int(math.Round(f.Coordinates.Y)),
				Width:  int(math.Round(f.Coordinates.Width)),
				Height: int(math.Round(f.Coordinates.Height)),
			},
			Roast:          f.Roast,
			Recommendation: f.Recommendation,
		})
	}
	out.PositiveAspects = append(out.PositiveAspects, raw.PositiveAspects...)
	return out, nil
}

// extractObject returns the first {...} span whose braces balance, ignoring
// braces inside JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func normalizeRating(v any) int {
	var f float64
	switch r := v.(type) {
	case float64:
		f = r
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return DefaultRating
		}
		f = parsed
	default:
		return DefaultRating
	}
	rating := int(math.Round(f))
	switch {
	case rating <= 0:
		return DefaultRating
	case rating > 10:
		return 10
	default:
		return rating
	}
}

func normalizeSeverity(s string) roast.Severity {
	sev := roast.Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev
	}
	return roast.SeverityMedium
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
