package capture

import (
	"testing"
	"time"
)

func TestDebouncerWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		first string
		next  string
		gap   time.Duration
		want  bool
	}{
		{name: "same text inside window", first: "REG100", next: "REG100", gap: 2999 * time.Millisecond, want: false},
		{name: "same text at window edge", first: "REG100", next: "REG100", gap: 3000 * time.Millisecond, want: true},
		{name: "same text after window", first: "REG100", next: "REG100", gap: 10 * time.Second, want: true},
		{name: "different text inside window", first: "REG100", next: "REG101", gap: 10 * time.Millisecond, want: true},
		{name: "immediate repeat", first: "REG100", next: "REG100", gap: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer()
			if !d.Accept(tt.first, base) {
				t.Fatal("first read must be accepted")
			}
			if got := d.Accept(tt.next, base.Add(tt.gap)); got != tt.want {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDebouncerSuppressedReadDoesNotExtendWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := NewDebouncer()
	d.Accept("REG100", base)
	if d.Accept("REG100", base.Add(2*time.Second)) {
		t.Fatal("repeat inside window accepted")
	}
	if !d.Accept("REG100", base.Add(3*time.Second)) {
		t.Fatal("window must be measured from the accepted read")
	}
}

func TestDebouncerReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := NewDebouncer()
	d.Accept("REG100", now)
	d.Reset()
	if !d.Accept("REG100", now.Add(time.Millisecond)) {
		t.Fatal("read after reset must be accepted")
	}
}

func TestDebouncerZeroValue(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var d Debouncer
	d.Accept("A", now)
	if d.Accept("A", now.Add(time.Second)) {
		t.Fatal("zero value must use the default window")
	}
}
