package logger

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// EntityType records the entity kind under the key "entity_type".
func EntityType(name string) slog.Attr {
	return slog.String("entity_type", name)
}

// EntityID records the persisted entity identity under the key "entity_id".
// Unsaved entities have no identity and produce an empty Attr.
func EntityID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("entity_id", id)
}

// Field records the state field name under the key "field".
func Field(name string) slog.Attr {
	return slog.String("field", name)
}

// State records a state value under the key "state", preferring its name.
func State(state any) slog.Attr {
	switch s := state.(type) {
	case nil:
		return slog.Attr{}
	case interface{ Name() string }:
		return slog.String("state", s.Name())
	case fmt.Stringer:
		return slog.String("state", s.String())
	default:
		return slog.Any("state", s)
	}
}

// Edge records a transition edge name under the key "edge".
// Automatic edges have no name and produce an empty Attr.
func Edge(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("edge", name)
}

// TaskID records a queue task identifier under the key "task_id".
// If id is nil, it returns an empty Attr.
func TaskID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("task_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
