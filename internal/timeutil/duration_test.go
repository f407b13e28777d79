package timeutil

import "testing"

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"2h30", 9000},
		{"2h", 7200},
		{"1h05", 3900},
		{"45m", 2700},
		{"3600", 3600},
		{"90", 90},
		{" 2H30 ", 9000},
		{"garbage", DefaultDurationSeconds},
		{"", DefaultDurationSeconds},
		{"-5", DefaultDurationSeconds},
		{"0", DefaultDurationSeconds},
		{"h30", DefaultDurationSeconds},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseDuration(tc.input); got != tc.want {
				t.Fatalf("ParseDuration(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{9000, "02:30:00"},
		{3661, "01:01:01"},
		{59, "00:00:59"},
		{0, "00:00:00"},
		{-5, "00:00:00"},
		{86400, "24:00:00"},
	}

	for _, tc := range tests {
		if got := FormatSeconds(tc.seconds); got != tc.want {
			t.Fatalf("FormatSeconds(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
