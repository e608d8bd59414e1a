package theme

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Preference
		wantErr bool
	}{
		{raw: "light", want: Light},
		{raw: "dark", want: Dark},
		{raw: " Dark ", want: Dark},
		{raw: "LIGHT", want: Light},
		{raw: "purple", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "system", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPreference) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidPreference", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestToggleIsInvolution(t *testing.T) {
	t.Parallel()

	for _, p := range All() {
		if p.Toggle() == p {
			t.Fatalf("Toggle(%q) returned the same value", p)
		}
		if got := p.Toggle().Toggle(); got != p {
			t.Fatalf("Toggle twice from %q = %q", p, got)
		}
	}
}

func TestToggleInvalidFallsBackToDefault(t *testing.T) {
	t.Parallel()

	if got := Preference("purple").Toggle(); got != Default {
		t.Fatalf("Toggle(purple) = %q, want %q", got, Default)
	}
	if got := Preference("").Toggle(); !got.Valid() {
		t.Fatalf("Toggle(zero) produced invalid %q", got)
	}
}

func TestPaletteCoverage(t *testing.T) {
	t.Parallel()

	for _, p := range All() {
		c, ok := palettes[p]
		if !ok {
			t.Fatalf("missing palette for %q", p)
		}
		v := reflect.ValueOf(c)
		for i := 0; i < v.NumField(); i++ {
			name := v.Type().Field(i).Name
			val := v.Field(i).String()
			if val == "" {
				t.Errorf("%s palette: %s is empty", p, name)
				continue
			}
			if name == "SyntaxTheme" || name == "MarkdownTheme" {
				continue
			}
			if !IsValidHexColor(val) {
				t.Errorf("%s palette: %s = %q is not a hex color", p, name, val)
			}
		}
	}
}

func TestPaletteInvalidUsesDefault(t *testing.T) {
	t.Parallel()

	if Palette("purple") != Palette(Default) {
		t.Fatal("invalid preference should resolve to the default palette")
	}
	if MarkdownTheme(Light) != "light" || MarkdownTheme(Dark) != "dark" {
		t.Fatalf("unexpected markdown themes: light=%q dark=%q", MarkdownTheme(Light), MarkdownTheme(Dark))
	}
}
