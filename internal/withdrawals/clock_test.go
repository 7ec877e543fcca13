package withdrawals

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestDayBounds(t *testing.T) {
	at := time.Date(2025, 3, 16, 1, 30, 0, 0, time.UTC) // 22:30 on the 15th in São Paulo
	start, end := DayBounds(at, saoPaulo)

	wantStart := time.Date(2025, 3, 15, 0, 0, 0, 0, saoPaulo)
	if !start.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, start)
	}
	wantEnd := time.Date(2025, 3, 15, 23, 59, 59, 999999999, saoPaulo)
	if !end.Equal(wantEnd) {
		t.Fatalf("expected end %v, got %v", wantEnd, end)
	}
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC), time.UTC)
	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2024, 2, 29, 23, 59, 59, 999999999, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}

	_, decEnd := MonthBounds(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), time.UTC)
	if !decEnd.Equal(time.Date(2025, 12, 31, 23, 59, 59, 999999999, time.UTC)) {
		t.Fatalf("unexpected december end %v", decEnd)
	}
}

func TestParseDateBound(t *testing.T) {
	empty, err := ParseDateBound("  ", saoPaulo, true)
	if err != nil || empty != nil {
		t.Fatalf("expected nil bound for blank input, got %v %v", empty, err)
	}

	lower, err := ParseDateBound("2025-03-15", saoPaulo, false)
	if err != nil {
		t.Fatalf("parse lower: %v", err)
	}
	if !lower.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, saoPaulo)) {
		t.Fatalf("unexpected lower bound %v", lower)
	}

	upper, err := ParseDateBound("2025-03-15", saoPaulo, true)
	if err != nil {
		t.Fatalf("parse upper: %v", err)
	}
	if !upper.Equal(time.Date(2025, 3, 15, 23, 59, 59, 999999999, saoPaulo)) {
		t.Fatalf("unexpected upper bound %v", upper)
	}

	exact, err := ParseDateBound("2025-03-15T10:00:00Z", saoPaulo, true)
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}
	if !exact.Equal(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamps must be kept as given, got %v", exact)
	}

	if _, err := ParseDateBound("15/03/2025", saoPaulo, false); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
