package ui

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Theme holds the resolved color palette as hex strings.
type Theme struct {
	Foreground string
	Accent     string
	Selection  string
	Dim        string
	Red        string
	Green      string
	Yellow     string
	Blue       string
	Border     string
	Header     string
}

// T is the active theme. Apply replaces it.
var T = defaultTheme()

// paletteFile is the on-disk colors format: named roles plus the usual
// sixteen terminal slots, any of which may be left out.
type paletteFile struct {
	Accent     string `toml:"accent"`
	Foreground string `toml:"foreground"`
	Selection  string `toml:"selection_foreground"`
	Color0     string `toml:"color0"`
	Color1     string `toml:"color1"`
	Color2     string `toml:"color2"`
	Color3     string `toml:"color3"`
	Color4     string `toml:"color4"`
	Color8     string `toml:"color8"`
	Color15    string `toml:"color15"`
}

func defaultTheme() Theme {
	return Theme{
		Foreground: "#e5e7eb",
		Accent:     "#8b5cf6",
		Selection:  "#c4b5fd",
		Dim:        "#6b7280",
		Red:        "#ef4444",
		Green:      "#22c55e",
		Yellow:     "#eab308",
		Blue:       "#3b82f6",
		Border:     "#374151",
		Header:     "#f9fafb",
	}
}

// LoadTheme reads a colors TOML file over the built-in palette. An empty
// path returns the built-in palette.
func LoadTheme(path string) (Theme, error) {
	t := defaultTheme()
	if path == "" {
		return t, nil
	}

	var pf paletteFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return t, fmt.Errorf("read theme %s: %w", path, err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.Foreground, pf.Foreground)
	set(&t.Accent, pf.Accent)
	set(&t.Selection, pf.Selection)
	set(&t.Dim, pf.Color0)
	set(&t.Red, pf.Color1)
	set(&t.Green, pf.Color2)
	set(&t.Yellow, pf.Color3)
	set(&t.Blue, pf.Color4)
	set(&t.Border, pf.Color8)
	set(&t.Header, pf.Color15)
	return t, nil
}

// Apply makes t the active theme and rebuilds the shared styles.
func Apply(t Theme) {
	T = t
	buildStyles()
}
