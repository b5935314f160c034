package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Theme selects a colour palette for rendered reports.
type Theme string

const (
	ThemeDark   Theme = "dark"
	ThemeBright Theme = "bright"
)

// ColorRole names what a colour is used for, never the colour itself.
type ColorRole string

const (
	RoleBackground ColorRole = "background"
	RoleSurface    ColorRole = "surface"
	RoleForeground ColorRole = "foreground"
	RoleMuted      ColorRole = "muted"
	RoleAccent     ColorRole = "accent"
	RoleHeader     ColorRole = "header"
	RoleRowOdd     ColorRole = "row_odd"
	RoleRowEven    ColorRole = "row_even"
)

// GradeRole returns the colour role for a grade letter.
func GradeRole(g Grade) ColorRole {
	return ColorRole("grade_" + strings.ToLower(string(g)))
}

var palettes = map[Theme]map[ColorRole]string{
	ThemeDark: {
		RoleBackground:    "#0f1724",
		RoleSurface:       "#0b1220",
		RoleForeground:    "#e6eef6",
		RoleMuted:         "#9fb0c8",
		RoleAccent:        "#0b3b66",
		RoleHeader:        "#20324a",
		RoleRowOdd:        "#07263a",
		RoleRowEven:       "#041723",
		GradeRole(GradeA): "#7ef0a6",
		GradeRole(GradeB): "#8fe6a8",
		GradeRole(GradeC): "#ffd27a",
		GradeRole(GradeD): "#ffb27a",
		GradeRole(GradeF): "#ff8a8a",
	},
	ThemeBright: {
		RoleBackground:    "#f0f0f0",
		RoleSurface:       "#ffffff",
		RoleForeground:    "#000000",
		RoleMuted:         "#666666",
		RoleAccent:        "#cccccc",
		RoleHeader:        "#e0e0e0",
		RoleRowOdd:        "#f5f5f5",
		RoleRowEven:       "#ffffff",
		GradeRole(GradeA): "#008800",
		GradeRole(GradeB): "#33aa33",
		GradeRole(GradeC): "#cc9900",
		GradeRole(GradeD): "#cc6600",
		GradeRole(GradeF): "#cc0000",
	},
}

// ParseTheme accepts "dark" or "bright" (case-insensitive); anything else is bright.
func ParseTheme(raw string) Theme {
	if Theme(strings.ToLower(strings.TrimSpace(raw))) == ThemeDark {
		return ThemeDark
	}
	return ThemeBright
}

// ColorsFor returns a copy of the palette for the theme.
func ColorsFor(theme Theme) map[ColorRole]string {
	palette, ok := palettes[theme]
	if !ok {
		palette = palettes[ThemeBright]
	}
	out := make(map[ColorRole]string, len(palette))
	for role, color := range palette {
		out[role] = color
	}
	return out
}

// HexToRGB converts "#rrggbb" into its components.
func HexToRGB(hex string) (r, g, b int, err error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid colour %q", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}
