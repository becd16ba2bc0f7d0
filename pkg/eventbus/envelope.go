package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the initial lifecycle event schema.
	SchemaVersionV1 = "v1"
)

// Envelope is the canonical lifecycle event envelope.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Source        string          `json:"source"`
	RunID         string          `json:"run_id"`
	Workflow      string          `json:"workflow"`
	Step          string          `json:"step,omitempty"`
	Sequence      int64           `json:"sequence"`
	Payload       json.RawMessage `json:"payload"`
}

// Validate checks the identity and ordering fields every consumer relies on.
func (e Envelope) Validate() error {
	if e.EventID == "" || e.EventType == "" || e.SchemaVersion == "" {
		return fmt.Errorf("eventbus: missing required envelope fields")
	}
	if e.Source == "" || e.RunID == "" || e.Sequence <= 0 {
		return fmt.Errorf("eventbus: missing required identity/ordering fields")
	}
	if e.SchemaVersion != SchemaVersionV1 {
		return fmt.Errorf("eventbus: unsupported schema version %q", e.SchemaVersion)
	}
	return nil
}

// BuildEnvelopeInput is used to construct a new envelope.
type BuildEnvelopeInput struct {
	EventType string
	Source    string
	RunID     string
	Workflow  string
	Step      string
	Sequence  int64
	Payload   any
}

// BuildEnvelope creates a canonical envelope with a generated event id.
func BuildEnvelope(input BuildEnvelopeInput) (Envelope, error) {
	if input.EventType == "" {
		return Envelope{}, fmt.Errorf("eventbus: event type is required")
	}
	if input.Source == "" {
		return Envelope{}, fmt.Errorf("eventbus: source is required")
	}
	if input.RunID == "" {
		return Envelope{}, fmt.Errorf("eventbus: run id is required")
	}
	if input.Sequence <= 0 {
		return Envelope{}, fmt.Errorf("eventbus: sequence must be > 0")
	}

	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal payload: %w", err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     input.EventType,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersionV1,
		Source:        input.Source,
		RunID:         input.RunID,
		Workflow:      input.Workflow,
		Step:          input.Step,
		Sequence:      input.Sequence,
		Payload:       payload,
	}, nil
}
