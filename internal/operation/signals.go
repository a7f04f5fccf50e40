package operation

import (
	"fmt"
	"strings"
)

// DefaultSignal is sent by Stop when the caller names none.
const DefaultSignal = "TERM"

var allowedSignals = map[string]bool{
	"TERM": true,
	"INT":  true,
	"KILL": true,
	"HUP":  true,
	"QUIT": true,
	"USR1": true,
	"USR2": true,
}

// ParseSignal normalizes a signal name: case-insensitive, with or without
// the SIG prefix. Empty means DefaultSignal.
func ParseSignal(s string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "SIG")
	if name == "" {
		return DefaultSignal, nil
	}
	if !allowedSignals[name] {
		return "", fmt.Errorf("unsupported signal %q (use TERM, INT, KILL, HUP, QUIT, USR1 or USR2)", s)
	}
	return name, nil
}
