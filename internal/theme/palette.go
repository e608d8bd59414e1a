package theme

import "regexp"

// hexColorRegex validates hex color codes (#RRGGBB or #RRGGBBAA with alpha)
var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}([0-9A-Fa-f]{2})?$`)

// ColorPalette holds the colors a preference renders with.
type ColorPalette struct {
	// Brand colors
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`

	// Status colors
	Success string `json:"success"`
	Warning string `json:"warning"`
	Error   string `json:"error"`

	// Text colors
	TextPrimary   string `json:"textPrimary"`
	TextSecondary string `json:"textSecondary"`
	TextMuted     string `json:"textMuted"`

	// Background colors
	BgPrimary   string `json:"bgPrimary"`
	BgSecondary string `json:"bgSecondary"`

	// Border colors
	BorderNormal string `json:"borderNormal"`
	BorderActive string `json:"borderActive"`

	// Third-party theme names
	SyntaxTheme   string `json:"syntaxTheme"`   // Chroma theme name
	MarkdownTheme string `json:"markdownTheme"` // Glamour standard style
}

var palettes = map[Preference]ColorPalette{
	Dark: {
		Primary:   "#7C3AED", // Purple
		Secondary: "#3B82F6", // Blue
		Accent:    "#F59E0B", // Amber

		Success: "#10B981",
		Warning: "#F59E0B",
		Error:   "#EF4444",

		TextPrimary:   "#F9FAFB",
		TextSecondary: "#9CA3AF",
		TextMuted:     "#6B7280",

		BgPrimary:   "#111827",
		BgSecondary: "#1F2937",

		BorderNormal: "#374151",
		BorderActive: "#7C3AED",

		SyntaxTheme:   "monokai",
		MarkdownTheme: "dark",
	},
	Light: {
		Primary:   "#6D28D9",
		Secondary: "#2563EB",
		Accent:    "#B45309",

		Success: "#047857",
		Warning: "#B45309",
		Error:   "#B91C1C",

		TextPrimary:   "#111827",
		TextSecondary: "#374151",
		TextMuted:     "#6B7280",

		BgPrimary:   "#F9FAFB",
		BgSecondary: "#E5E7EB",

		BorderNormal: "#D1D5DB",
		BorderActive: "#6D28D9",

		SyntaxTheme:   "github",
		MarkdownTheme: "light",
	},
}

// Palette returns the palette for p. Invalid preferences get the Default
// palette.
func Palette(p Preference) ColorPalette {
	if c, ok := palettes[p]; ok {
		return c
	}
	return palettes[Default]
}

// IsValidHexColor checks if a string is a valid hex color code (#RRGGBB or #RRGGBBAA)
func IsValidHexColor(hex string) bool {
	return hexColorRegex.MatchString(hex)
}

// SyntaxTheme returns the chroma style used for code under p.
func SyntaxTheme(p Preference) string {
	return Palette(p).SyntaxTheme
}

// MarkdownTheme returns the glamour standard style used under p.
func MarkdownTheme(p Preference) string {
	return Palette(p).MarkdownTheme
}
