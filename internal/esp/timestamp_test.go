package esp

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
	}{
		{"rfc3339", "2025-01-01T12:00:00Z"},
		{"rfc3339 offset", "2025-01-01T13:00:00+01:00"},
		{"rfc3339 nano", "2025-01-01T12:00:00.000Z"},
		{"zoneless", "2025-01-01T12:00:00"},
		{"rfc1123z", "Wed, 01 Jan 2025 12:00:00 +0000"},
		{"unix float", float64(1735732800)},
		{"unix int64", int64(1735732800)},
		{"unix string", "1735732800"},
		{"unix json number", json.Number("1735732800.0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%v) error = %v", tt.in, err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseTimestamp(%v) = %v, want %v", tt.in, got, want)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestParseTimestamp_Fractional(t *testing.T) {
	got, err := ParseTimestamp(1735732800.5)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nanosecond() != 500000000 {
		t.Errorf("nanoseconds = %d, want 500000000", got.Nanosecond())
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []any{"", "yesterday", nil, []string{"x"}} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Errorf("ParseTimestamp(%v) expected error", in)
		}
	}
}
