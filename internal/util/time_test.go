package util

import (
	"testing"
	"time"
)

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"07:30", 450, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMM(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseHHMM(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClampText(t *testing.T) {
	if got := ClampText("short", 10); got != "short" {
		t.Errorf("expected unchanged text, got %q", got)
	}
	got := ClampText("abcdefghij", 8)
	if got != "abcde..." {
		t.Errorf("expected truncated text with ellipsis, got %q", got)
	}
	if len([]rune(got)) != 8 {
		t.Errorf("expected clamped length 8, got %d", len([]rune(got)))
	}
}

func TestEnsureMinDelay(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	early := base.Add(10 * time.Second)
	if got := EnsureMinDelay(early, base, time.Minute); !got.Equal(base.Add(time.Minute)) {
		t.Errorf("expected bump to base+1m, got %v", got)
	}
	late := base.Add(10 * time.Minute)
	if got := EnsureMinDelay(late, base, time.Minute); !got.Equal(late) {
		t.Errorf("expected unchanged, got %v", got)
	}
}
