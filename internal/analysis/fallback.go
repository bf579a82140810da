package analysis

import (
	"context"

	"github.com/JakeFAU/roastd/internal/roast"
)

// Offline is a roast.VisionModel for running without model credentials. Its
// empty reply never parses, so every analysis degrades to Fallback.
type Offline struct{}

// Critique returns an empty reply.
func (Offline) Critique(context.Context, roast.Raster, string) (string, error) {
	return "", nil
}

// Fallback is the canned critique used when a model reply cannot be parsed.
// Every call returns a fresh copy.
func Fallback() roast.AnalysisResult {
	return roast.AnalysisResult{
		OverallRating: 2,
		RoastSummary: "I tried to analyze your website, but it was so bad it broke my AI brain. " +
			"Based on what I did see before my circuits fried, this is a complete disaster from top to bottom.",
		KarenOpeningLine: "Well, this is awkward. Your website is so terrible I can't even properly roast it, " +
			"but let me try anyway...",
		DesignFlaws: []roast.DesignFlaw{
			{
				Issue:          "Header navigation is a cluttered mess",
				Severity:       roast.SeverityCritical,
				Coordinates:    roast.BoundingBox{X: 50, Y: 20, Width: 1820, Height: 80},
				Roast:          "Your navigation looks like someone threw spaghetti at the wall.",
				Recommendation: "Simplify your nav to 5-7 key items max.",
			},
			{
				Issue:       "Hero section with unreadable text overlay",
				Severity:    roast.SeverityCritical,
				Coordinates: roast.BoundingBox{X: 100, Y: 120, Width: 1720, Height: 450},
				Roast: "White text on a light background? Really? Did you skip the entire chapter on contrast " +
					"in Design 101? I literally can't read your headline.",
				Recommendation: "Add a dark overlay to your hero image (rgba(0,0,0,0.5) works wonders), or use a " +
					"solid background. Make sure your text contrast ratio is at least 4.5:1.",
			},
			{
				Issue:       "Inconsistent button styles throughout",
				Severity:    roast.SeverityHigh,
				Coordinates: roast.BoundingBox{X: 150, Y: 600, Width: 200, Height: 50},
				Roast: "You have buttons in three different styles on one page. Pick a lane! Are we doing " +
					"rounded corners or sharp edges? Gradients or flat? Make up your mind!",
				Recommendation: "Create a consistent button component system. One primary style, one secondary " +
					"style max. Use your design tokens and stick to them.",
			},
			{
				Issue:       "Form fields with no labels or placeholders",
				Severity:    roast.SeverityHigh,
				Coordinates: roast.BoundingBox{X: 300, Y: 750, Width: 600, Height: 280},
				Roast: "Ah yes, the mystery form fields. What am I supposed to enter here? My social security " +
					"number? My deepest fears? A LABEL WOULD HELP.",
				Recommendation: "Add visible labels above each field. Use placeholders for format examples. " +
					"Include error states with clear messaging. Basic accessibility, people!",
			},
			{
				Issue:       "Footer with 47 links nobody asked for",
				Severity:    roast.SeverityMedium,
				Coordinates: roast.BoundingBox{X: 50, Y: 950, Width: 1820, Height: 200},
				Roast: "Your footer looks like a sitemap had explosive diarrhea. Nobody is reading all those " +
					"links. NOBODY.",
				Recommendation: "Organize footer into 3-4 clear categories. Remove redundant links. Keep it under " +
					"20 total links. Use proper columns and spacing.",
			},
			{
				Issue:       "Color palette from the 90s geocities era",
				Severity:    roast.SeverityHigh,
				Coordinates: roast.BoundingBox{X: 0, Y: 0, Width: 1920, Height: 1080},
				Roast: "Neon green, hot pink, and electric blue? What is this, a rave? My eyes are bleeding. " +
					"Color theory exists for a reason.",
				Recommendation: "Choose a proper color palette with 2-3 main colors max. Use a tool like Coolors " +
					"or Adobe Color. Stick to colors that don't cause seizures.",
			},
			{
				Issue:       "Text blocks with zero line spacing",
				Severity:    roast.SeverityMedium,
				Coordinates: roast.BoundingBox{X: 200, Y: 400, Width: 800, Height: 300},
				Roast: "Your paragraphs look like they're having a group hug. Ever heard of line-height? " +
					"White space? Readability?",
				Recommendation: "Set line-height to 1.5-1.8 for body text. Add margin between paragraphs. Break " +
					"up long text blocks. Let your content breathe!",
			},
			{
				Issue:       "Mobile responsiveness is nonexistent",
				Severity:    roast.SeverityCritical,
				Coordinates: roast.BoundingBox{X: 0, Y: 0, Width: 1920, Height: 1080},
				Roast: "Did you even TEST this on mobile? Everything overlaps, text is cut off, and I have to " +
					"scroll horizontally like it's 2003.",
				Recommendation: "Use mobile-first responsive design. Test on actual devices. Use CSS media " +
					"queries. Make touch targets at least 44x44px. This is not optional anymore.",
			},
		},
		PositiveAspects: []string{"At least the page loaded... eventually."},
	}
}
