package events

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFields builds a request from key=value pairs such as those typed on a
// command line. user_id, session_id, and the core metadata keys fill their
// typed fields; any other key becomes an extension with its value read as a
// bool or number where possible.
func ParseFields(eventType EventType, pairs []string) (Request, error) {
	req := Request{Type: eventType}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Request{}, fmt.Errorf("expected key=value, got %q", pair)
		}

		switch key {
		case "user_id", "user":
			req.UserID = value
		case "session_id", "session":
			req.SessionID = value
		case "action":
			req.Metadata.Action = value
		case "component":
			req.Metadata.Component = value
		case "route":
			req.Metadata.Route = value
		case "file":
			req.Metadata.File = value
		case "error":
			req.Metadata.Error = value
		case "duration":
			d, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Request{}, fmt.Errorf("duration must be a number of milliseconds: %w", err)
			}
			req.Metadata.Duration = &d
		default:
			if req.Metadata.Extra == nil {
				req.Metadata.Extra = make(map[string]any)
			}
			req.Metadata.Extra[key] = scalarFromString(value)
		}
	}
	return req, req.Validate()
}

func scalarFromString(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "nNiI") {
		return n
	}
	return s
}
