package events

// Clone returns a copy of the metadata that shares no mutable state with m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Duration != nil {
		d := *m.Duration
		out.Duration = &d
	}
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// ExtraString returns an extension field as a string when it holds one.
func (m Metadata) ExtraString(key string) (string, bool) {
	v, ok := m.Extra[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Chain returns the "type:action" link used when building session workflows.
func (e *Event) Chain() string {
	action := e.Metadata.Action
	if action == "" {
		action = "unknown"
	}
	return string(e.Type) + ":" + action
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Metadata = e.Metadata.Clone()
	return &out
}
