package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name:    "missing type",
			req:     Request{Metadata: Metadata{Action: "click"}},
			wantErr: ErrMissingType,
		},
		{
			name:    "unknown type",
			req:     Request{Type: "telemetry"},
			wantErr: ErrUnknownType,
		},
		{
			name: "valid error event",
			req:  NewErrorRequest("s1", "checkout", "boom"),
		},
		{
			name: "valid performance event",
			req:  NewPerformanceRequest("s1", "render", 1200),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
		})
	}
}

func TestMetadataValidateRejectsNonScalarExtras(t *testing.T) {
	m := Metadata{Extra: map[string]any{
		"ok":     "fine",
		"nested": map[string]any{"a": 1},
	}}
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested")

	m = Metadata{Extra: map[string]any{"count": 3, "flag": true, "ratio": 0.5}}
	assert.NoError(t, m.Validate())
}

func TestMetadataValidateRejectsNegativeDuration(t *testing.T) {
	d := -5.0
	assert.Error(t, Metadata{Duration: &d}.Validate())
}

func TestErrorTextDefault(t *testing.T) {
	assert.Equal(t, UnknownError, Metadata{}.ErrorText())
	assert.Equal(t, "timeout", Metadata{Error: "timeout"}.ErrorText())
}

func TestNewEventStampsIDAndTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := NewPerformanceRequest("s1", "render", 1500)

	e1 := NewEvent(req, now)
	e2 := NewEvent(req, now)

	assert.NotEmpty(t, e1.ID)
	assert.NotEqual(t, e1.ID, e2.ID)
	assert.Equal(t, now, e1.Timestamp)
	assert.Equal(t, EventTypePerformance, e1.Type)

	// The recorded event must not alias the request's duration pointer
	*req.Metadata.Duration = 1
	require.NotNil(t, e1.Metadata.Duration)
	assert.Equal(t, 1500.0, *e1.Metadata.Duration)
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	ts := time.Date(2026, 3, 2, 5, 0, 0, 0, loc) // 2026-03-01 19:00 UTC
	assert.Equal(t, "2026-03-01", DayKey(ts))
}

func TestChain(t *testing.T) {
	e := &Event{Type: EventTypeUserAction, Metadata: Metadata{Action: "click"}}
	assert.Equal(t, "user_action:click", e.Chain())

	e = &Event{Type: EventTypeError}
	assert.Equal(t, "error:unknown", e.Chain())
}
