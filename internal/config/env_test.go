// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		envSet       bool
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_STRING",
			defaultValue: "default",
			envValue:     "from-env",
			envSet:       true,
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "TEST_STRING_UNSET",
			defaultValue: "default",
			want:         "default",
		},
		{
			name:         "environment variable empty string",
			key:          "TEST_STRING_EMPTY",
			defaultValue: "default",
			envValue:     "",
			envSet:       true,
			want:         "default",
		},
		{
			name:         "sensitive variable",
			key:          "TEST_API_KEY",
			defaultValue: "",
			envValue:     "sk-secret",
			envSet:       true,
			want:         "sk-secret",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envSet {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := ParseString(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("ParseString(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := ParseInt("TEST_INT", 7); got != 42 {
		t.Errorf("ParseInt = %d, want 42", got)
	}
	t.Setenv("TEST_INT_BAD", "not-a-number")
	if got := ParseInt("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("ParseInt with invalid value = %d, want default 7", got)
	}
	if got := ParseInt("TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("ParseInt unset = %d, want default 7", got)
	}
}

func TestParseFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "1.5")
	if got := ParseFloat("TEST_FLOAT", 1.0); got != 1.5 {
		t.Errorf("ParseFloat = %g, want 1.5", got)
	}
	t.Setenv("TEST_FLOAT_BAD", "fast")
	if got := ParseFloat("TEST_FLOAT_BAD", 1.0); got != 1.0 {
		t.Errorf("ParseFloat with invalid value = %g, want default 1.0", got)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"TRUE", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"maybe", true}, // invalid falls back to default (true here)
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := ParseBool("TEST_BOOL", true); got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	if got := ParseDuration("TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("ParseDuration(90s) = %v, want 90s", got)
	}
	// Bare integers are treated as seconds for compatibility with plain
	// numeric timeout settings.
	t.Setenv("TEST_DUR_INT", "120")
	if got := ParseDuration("TEST_DUR_INT", time.Minute); got != 120*time.Second {
		t.Errorf("ParseDuration(120) = %v, want 2m", got)
	}
	t.Setenv("TEST_DUR_BAD", "soon")
	if got := ParseDuration("TEST_DUR_BAD", time.Minute); got != time.Minute {
		t.Errorf("ParseDuration(soon) = %v, want default 1m", got)
	}
}
