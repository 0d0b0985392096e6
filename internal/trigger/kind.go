// Package trigger describes how functions are triggered and which capture
// and replay strategies serve each trigger kind.
package trigger

import (
	"fmt"
	"strings"
)

// Kind is the closed set of trigger kinds. Unknown is a real value, not an
// error: functions whose bindings match no registered plugin carry it.
type Kind int

const (
	Unknown Kind = iota
	File
	HTTP
	Queue
	Timer

	kindCount
)

var kindNames = [kindCount]string{
	Unknown: "Unknown",
	File:    "File",
	HTTP:    "Http",
	Queue:   "Queue",
	Timer:   "Timer",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) Known() bool {
	return k > Unknown && k < kindCount
}

func ParseKind(s string) (Kind, bool) {
	for k := Unknown; k < kindCount; k++ {
		if strings.EqualFold(kindNames[k], strings.TrimSpace(s)) {
			return k, true
		}
	}
	return Unknown, false
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown trigger kind %q", string(b))
	}
	*k = parsed
	return nil
}
