package infra

import "testing"

func TestNewLogger(t *testing.T) {
	cases := []struct {
		level   string
		dev     bool
		wantErr bool
	}{
		{"info", false, false},
		{"debug", true, false},
		{"warn", false, false},
		{"loud", false, true},
	}
	for _, tc := range cases {
		log, err := NewLogger(tc.level, tc.dev)
		if tc.wantErr {
			if err == nil {
				t.Errorf("level %q: expected error", tc.level)
			}
			continue
		}
		if err != nil {
			t.Errorf("level %q: %v", tc.level, err)
			continue
		}
		if log == nil {
			t.Errorf("level %q: nil logger", tc.level)
		}
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	log, err := NewLogger("warn", false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(-1) {
		t.Fatal("debug should be disabled at warn level")
	}
}
