package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"10s", 10 * time.Second, false},
		{"700ms", 700 * time.Millisecond, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"", 0, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"500m", 500, false},
		{"1.5km", 1500, false},
		{"250", 250, false},
		{"10x", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDistance(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDistance(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestUnitsYAML(t *testing.T) {
	var v struct {
		Timeout  Duration `yaml:"timeout"`
		Accuracy Distance `yaml:"accuracy"`
		Raw      Distance `yaml:"raw"`
	}
	in := "timeout: 10s\naccuracy: 0.5km\nraw: 42\n"
	if err := yaml.Unmarshal([]byte(in), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Timeout.Std() != 10*time.Second {
		t.Errorf("Timeout = %v", v.Timeout.Std())
	}
	if v.Accuracy != 500 {
		t.Errorf("Accuracy = %v", v.Accuracy)
	}
	if v.Raw != 42 {
		t.Errorf("Raw = %v", v.Raw)
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "timeout: 10s\naccuracy: 500m\nraw: 42m\n" {
		t.Errorf("marshal output = %q", out)
	}
}
