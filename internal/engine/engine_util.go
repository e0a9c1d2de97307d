package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

// NormalizeName trims and caps a display name. ok is false when nothing is
// left.
func NormalizeName(raw string) (string, bool) {
	name := strings.TrimSpace(norm.NFC.String(raw))
	if r := []rune(name); len(r) > MaxNameLength {
		name = strings.TrimSpace(string(r[:MaxNameLength]))
	}
	return name, name != ""
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func newTapLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(MinTapInterval), 1)
}
