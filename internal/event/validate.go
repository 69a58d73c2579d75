package event

import (
	"fmt"
	"log/slog"
	"time"
)

// Interner canonicalizes repeated attribute strings so the agent holds
// a single backing array per distinct value.
type Interner interface {
	Intern(string) string
}

// Policy holds the attribute validation and truncation limits shared
// across the agent. Values beyond the byte limits are truncated, never
// rejected; attributes past MaxAttributes are skipped.
type Policy struct {
	MaxAttributes int
	MaxKeyBytes   int
	MaxValueBytes int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttributes: 64,
		MaxKeyBytes:   255,
		MaxValueBytes: 4096,
	}
}

// New validates rawAttributes and builds an Event carrying the surviving
// entries. Entries with an empty key or nil value are skipped with a
// diagnostic. String values are truncated per policy and interned;
// numbers and booleans pass through; anything else is stored as its
// text representation. The event priority starts at a random default
// and may be overwritten when the owning unit of work completes.
func New(rawAttributes map[string]any, policy Policy, interner Interner, logger *slog.Logger) *Event {
	attrs := make(map[string]any, len(rawAttributes))
	ev := &Event{
		Timestamp:  time.Now(),
		Attributes: attrs,
		Priority:   NewPriority(),
	}

	for key, value := range rawAttributes {
		if key == "" || value == nil {
			logger.Warn("log event attribute with empty key or nil value ignored",
				"key", key)
			continue
		}
		if len(attrs) >= policy.MaxAttributes {
			logger.Warn("log event attribute limit reached, remaining attributes ignored",
				"limit", policy.MaxAttributes)
			break
		}

		key = TruncateBytes(key, policy.MaxKeyBytes)

		switch v := value.(type) {
		case string:
			attrs[key] = interner.Intern(TruncateBytes(v, policy.MaxValueBytes))
		case bool:
			attrs[key] = v
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			attrs[key] = v
		default:
			// Stringify everything else so enums, errors and stringers
			// survive as text instead of being dropped.
			attrs[key] = interner.Intern(TruncateBytes(fmt.Sprint(v), policy.MaxValueBytes))
		}
	}

	return ev
}

// TruncateBytes clips input to at most maxBytes bytes.
func TruncateBytes(input string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	raw := []byte(input)
	if len(raw) <= maxBytes {
		return input
	}
	return string(raw[:maxBytes])
}
