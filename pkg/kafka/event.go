package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope layout this package writes. DecodeEvent
// rejects newer layouts.
const SchemaVersion = 1

// Event is the envelope around every payload the bridge publishes. Key is the
// message key, so all events for one receipt share a partition.
type Event struct {
	ID            string            `json:"event_id"`
	Type          string            `json:"event_type"`
	Subject       string            `json:"subject"`
	Key           string            `json:"key"`
	SchemaVersion int               `json:"schema_version"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
}

// Option adjusts an event while it is built.
type Option func(*Event)

// WithCorrelation sets the correlation id. Empty ids are ignored.
func WithCorrelation(id string) Option {
	return func(e *Event) {
		if id != "" {
			e.CorrelationID = id
		}
	}
}

// WithAttribute adds a string attribute, also sent as a message header.
// Empty values are ignored.
func WithAttribute(key, value string) Option {
	return func(e *Event) {
		if value == "" {
			return
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]string)
		}
		e.Attributes[key] = value
	}
}

// WithOccurredAt overrides the event time. A zero time is ignored.
func WithOccurredAt(t time.Time) Option {
	return func(e *Event) {
		if !t.IsZero() {
			e.OccurredAt = t.UTC()
		}
	}
}

// NewEvent builds an envelope around payload.
func NewEvent(source, eventType, subject, key string, payload any, opts ...Option) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	e := &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Subject:       subject,
		Key:           key,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Source:        source,
		Payload:       raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate reports missing envelope fields.
func (e *Event) Validate() error {
	var errs []error
	if e.Type == "" {
		errs = append(errs, errors.New("event type is required"))
	}
	if e.Key == "" {
		errs = append(errs, errors.New("event key is required"))
	}
	if e.Source == "" {
		errs = append(errs, errors.New("event source is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid %q event: %w", e.Type, err)
	}
	return nil
}

// DecodeEvent parses an envelope written by NewEvent.
func DecodeEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("decode event %s: schema version %d is newer than %d", e.ID, e.SchemaVersion, SchemaVersion)
	}
	return &e, nil
}

// DecodePayload unmarshals the payload into target.
func (e *Event) DecodePayload(target any) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
