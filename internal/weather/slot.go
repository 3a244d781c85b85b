package weather

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotLayout is the canonical slot key format, matching the provider's time labels.
const SlotLayout = "2006-01-02T15:04"

// SlotMinutes is the slot width.
const SlotMinutes = 15

// ResolveSlot maps a requested "YYYY-MM-DDTHH:MM" instant to its slot key by flooring
// the minute to a 15-minute boundary. Both the write and the read path go through it.
func ResolveSlot(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if len(requested) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, requested)
	}

	head, tail := requested[:len(requested)-2], requested[len(requested)-2:]
	if !isDigit(tail[0]) || !isDigit(tail[1]) {
		return "", fmt.Errorf("%w: minute %q", ErrInvalidTime, tail)
	}
	minute, err := strconv.Atoi(tail)
	if err != nil {
		return "", fmt.Errorf("%w: minute %q", ErrInvalidTime, tail)
	}

	// A minute of 60..99 floors to a value that still fails to parse below.
	floored := (minute / SlotMinutes) * SlotMinutes
	candidate := fmt.Sprintf("%s%02d", head, floored)

	t, err := time.Parse(SlotLayout, candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, requested)
	}
	return t.Format(SlotLayout), nil
}

// SlotKey returns the slot containing t, evaluated in UTC.
func SlotKey(t time.Time) string {
	// A formatted instant always resolves.
	key, _ := ResolveSlot(t.UTC().Format(SlotLayout))
	return key
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
