package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type options struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Tool   string   `json:"tool"`
	Gains  *[2]int  `json:"gains,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

var defaults = options{Width: 640, Height: 480, Tool: "rpicam-vid"}

func TestLoad_MissingFile(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "missing.json"), defaults)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, defaults) {
		t.Errorf("got %+v, want defaults", got)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	got, err := Load("", defaults)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, defaults) {
		t.Errorf("got %+v, want defaults", got)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera.json")
	if err := os.WriteFile(path, []byte(`{"width": 1920, "gains": [1, 2]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 1920 || got.Height != 480 || got.Tool != "rpicam-vid" {
		t.Errorf("got %+v", got)
	}
	if got.Gains == nil || *got.Gains != [2]int{1, 2} {
		t.Errorf("gains = %v", got.Gains)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown field", `{"fps": 30}`},
		{"bad type", `{"width": "wide"}`},
		{"truncated", `{"width": 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.in), defaults)
			if err == nil {
				t.Fatal("expected error")
			}
			if got.Width != defaults.Width {
				t.Errorf("defaults modified: %+v", got)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera.json")
	want := options{Width: 800, Height: 600, Tool: "raspivid", Tags: []string{"porch"}}
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != want.Width || got.Tool != want.Tool || len(got.Tags) != 1 || got.Tags[0] != "porch" {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
