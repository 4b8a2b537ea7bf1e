package ui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadThemeOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.toml")
	body := "accent = \"#ff0000\"\ncolor1 = \"#aa0000\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	th, err := LoadTheme(path)
	if err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}
	def := defaultTheme()
	if th.Accent != "#ff0000" || th.Red != "#aa0000" {
		t.Errorf("overrides not applied: %+v", th)
	}
	if th.Green != def.Green || th.Border != def.Border {
		t.Errorf("unset colors changed: %+v", th)
	}
}

func TestLoadThemeFallback(t *testing.T) {
	th, err := LoadTheme("")
	if err != nil || th != defaultTheme() {
		t.Fatalf("LoadTheme(\"\") = %+v, %v", th, err)
	}
	if _, err := LoadTheme(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing theme file accepted")
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int]string{
		0:       "0B",
		1023:    "1023B",
		1536:    "1.5K",
		3 << 20: "3.0M",
	}
	for n, want := range cases {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}
