package utils

import (
	"sort"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewID_Monotonic(t *testing.T) {
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = NewID()
	}

	if !sort.StringsAreSorted(ids) {
		t.Error("ids generated in sequence must sort in creation order")
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Fatalf("invalid ULID %q: %v", id, err)
		}
	}
}

func TestNewIDAt_Timestamp(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id := ulid.MustParse(NewIDAt(at))
	if got := ulid.Time(id.Time()); !got.Equal(at) {
		t.Errorf("ULID time = %v, want %v", got, at)
	}
}

func TestTradingDate(t *testing.T) {
	// 23:30 в UTC-5 уже следующий день по UTC
	loc := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2024, 6, 30, 23, 30, 0, 0, loc)
	if got := TradingDate(at); got != "2024-07-01" {
		t.Errorf("TradingDate() = %q, want 2024-07-01", got)
	}
}
