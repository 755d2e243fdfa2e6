package pathminter

import (
	"regexp"
	"testing"
	"time"
)

func fixedZoneTime(offsetSeconds int) time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.FixedZone("test", offsetSeconds))
}

var mintedPattern = regexp.MustCompile(`^optimized/\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}-\d{3}_[+-]\d{2}(:\d{2})?_[0-9a-f-]{36}\.jpeg$`)

func TestMintMatchesExpectedShape(t *testing.T) {
	path := Mint("jpeg")
	if !mintedPattern.MatchString(path) {
		t.Fatalf("minted path %q does not match expected shape", path)
	}
}

func TestMintIsCollisionFreeAcrossCalls(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p := Mint("png")
		if seen[p] {
			t.Fatalf("collision detected at iteration %d: %s", i, p)
		}
		seen[p] = true
	}
}

func TestUTCOffsetWholeHourDropsMinutes(t *testing.T) {
	if got := utcOffset(fixedZoneTime(5 * 3600)); got != "+05" {
		t.Fatalf("expected +05, got %s", got)
	}
	if got := utcOffset(fixedZoneTime(-3 * 3600)); got != "-03" {
		t.Fatalf("expected -03, got %s", got)
	}
}

func TestUTCOffsetHalfHourZoneKeepsMinutes(t *testing.T) {
	if got := utcOffset(fixedZoneTime(5*3600 + 30*60)); got != "+05:30" {
		t.Fatalf("expected +05:30, got %s", got)
	}
}
