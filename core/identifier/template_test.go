package identifier

import (
	"errors"
	"testing"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr error
	}{
		{name: "default student format", format: "STU-{YEAR}-{GRADE}-{SECTION}-{COUNTER:4}"},
		{name: "bare counter", format: "ID-{COUNTER}"},
		{name: "counter only", format: "{COUNTER:6}"},
		{name: "no counter", format: "STU-{YEAR}", wantErr: ErrMissingCounter},
		{name: "empty format", format: "", wantErr: ErrMissingCounter},
		{name: "two counters", format: "{COUNTER}-{COUNTER:3}", wantErr: ErrDuplicateCounter},
		{name: "unknown placeholder", format: "{FOO}-{COUNTER}", wantErr: ErrInvalidPlaceholder},
		{name: "empty placeholder", format: "{}-{COUNTER}", wantErr: ErrInvalidPlaceholder},
		{name: "zero width", format: "{COUNTER:0}", wantErr: ErrInvalidPlaceholder},
		{name: "misspelled counter", format: "{COUNT}", wantErr: ErrMissingCounter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(tt.format)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateFormat(%q) = %v, want nil", tt.format, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFormat(%q) = %v, want %v", tt.format, err, tt.wantErr)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		format string
		ctx    Context
		want   string
	}{
		{
			name:   "all placeholders",
			format: "STU-{YEAR}-{GRADE}-{SECTION}-{COUNTER:4}",
			ctx:    Context{Year: 2025, Grade: "10", Section: "A", Counter: 42},
			want:   "STU-2025-10-A-0042",
		},
		{
			name:   "bare counter not padded",
			format: "ADM-{COUNTER}",
			ctx:    Context{Counter: 7},
			want:   "ADM-7",
		},
		{
			name:   "counter wider than declared is not truncated",
			format: "R-{COUNTER:3}",
			ctx:    Context{Counter: 1000},
			want:   "R-1000",
		},
		{
			name:   "grade and section verbatim",
			format: "{GRADE}{SECTION}-{COUNTER:3}",
			ctx:    Context{Grade: "10", Section: "b", Counter: 5},
			want:   "10b-005",
		},
		{
			name:   "zero counter",
			format: "EMP-{YEAR}-{COUNTER:4}",
			ctx:    Context{Year: 2026, Counter: 0},
			want:   "EMP-2026-0000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.format, tt.ctx); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
			// rendering is pure
			if got := Render(tt.format, tt.ctx); got != tt.want {
				t.Errorf("Render() second call = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCounterWidth(t *testing.T) {
	tests := []struct {
		format string
		want   int
	}{
		{"STU-{COUNTER:4}", 4},
		{"{COUNTER}", 0},
		{"no counter", 0},
	}
	for _, tt := range tests {
		if got := CounterWidth(tt.format); got != tt.want {
			t.Errorf("CounterWidth(%q) = %d, want %d", tt.format, got, tt.want)
		}
	}
}
