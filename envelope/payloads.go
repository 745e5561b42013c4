package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/catcatai/hsp/errors"
)

// Payload is implemented by every typed HSP payload. MessageType returns
// the namespaced wire string the payload travels under; Validate checks
// the minimal required fields for that type.
type Payload interface {
	MessageType() string
	Validate() error
}

// StatementType enumerates how a Fact states its claim.
type StatementType string

// Valid statement types.
const (
	StatementNaturalLanguage StatementType = "natural_language"
	StatementSemanticTriple  StatementType = "semantic_triple"
	StatementJSONLD          StatementType = "json_ld"
)

// SemanticTriple is the structured subject/predicate/object form of a fact.
type SemanticTriple struct {
	SubjectURI    string `json:"subject_uri"`
	PredicateURI  string `json:"predicate_uri"`
	ObjectLiteral string `json:"object_literal"`
}

/// Fact is a claim published by an agent. Facts are never mutated: a new
// fact sharing semantic identity with higher effective confidence
// supersedes an older one.
type Fact struct {
	ID                  string          `json:"id"`
	StatementType       StatementType   `json:"statement_type"`
	StatementNL         string          `json:"statement_nl,omitempty"`
	StatementStructured *SemanticTriple `json:"statement_structured,omitempty"`
	SourceAIID          string          `json:"source_ai_id"`
	TimestampCreated    time.Time       `json:"timestamp_created"`
	ConfidenceScore     float64         `json:"confidence_score"`
	Tags                []string        `json:"tags,omitempty"`
}

// MessageType implements Payload.
func (f *Fact) MessageType() string { return TypeFact }

// Validate checks the minimal required fields of a Fact.
func (f *Fact) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: fact id is required", errors.ErrInvalidPayload)
	}
	if f.ConfidenceScore < 0 || f.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence_score %v outside [0,1]",
			errors.ErrInvalidPayload, f.ConfidenceScore)
	}
	if f.StatementType == StatementSemanticTriple && f.StatementStructured == nil {
		return fmt.Errorf("%w: semantic_triple fact without statement_structured",
			errors.ErrInvalidPayload)
	}
	return nil
}

// StatementText returns the best available textual form of the fact,
// used for keyword extraction when scoring evidence.
func (f *Fact) StatementText() string {
	if f.StatementNL != "" {
		return f.StatementNL
	}
	if f.StatementStructured != nil {
		t := f.StatementStructured
		return fmt.Sprintf("%s %s %s", t.SubjectURI, t.PredicateURI, t.ObjectLiteral)
	}
	return ""
}

// AvailabilityStatus describes whether an advertised capability can
// currently accept work.
type AvailabilityStatus string

// Availability states carried by capability advertisements.
const (
	AvailabilityOnline      AvailabilityStatus = "online"
	AvailabilityOffline     AvailabilityStatus = "offline"
	AvailabilityDegraded    AvailabilityStatus = "degraded"
	AvailabilityMaintenance AvailabilityStatus = "maintenance"
)

// CapabilityAdvertisement announces a named service a remote agent can
// perform. Freshness is tracked by the receiver, not the payload.
type CapabilityAdvertisement struct {
	CapabilityID       string             `json:"capability_id"`
	AIID               string             `json:"ai_id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Version            string             `json:"version,omitempty"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status"`
	Tags               []string           `json:"tags,omitempty"`
}

// MessageType implements Payload.
func (c *CapabilityAdvertisement) MessageType() string { return TypeCapabilityAdvertisement }

// Validate checks the minimal required fields of an advertisement.
func (c *CapabilityAdvertisement) Validate() error {
	if c.CapabilityID == "" {
		return fmt.Errorf("%w: capability_id is required", errors.ErrInvalidPayload)
	}
	if c.AIID == "" {
		return fmt.Errorf("%w: ai_id is required", errors.ErrInvalidPayload)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: capability name is required", errors.ErrInvalidPayload)
	}
	return nil
}

// TaskRequest asks a remote agent to perform an advertised capability.
type TaskRequest struct {
	RequestID          string         `json:"request_id"`
	RequesterAIID      string         `json:"requester_ai_id,omitempty"`
	TargetAIID         string         `json:"target_ai_id,omitempty"`
	CapabilityIDFilter string         `json:"capability_id_filter"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	CallbackAddress    string         `json:"callback_address,omitempty"`
}

// MessageType implements Payload.
func (r *TaskRequest) MessageType() string { return TypeTaskRequest }

// Validate checks the minimal required fields of a request.
func (r *TaskRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", errors.ErrInvalidPayload)
	}
	return nil
}

// TaskStatus enumerates the terminal and transient states of a task.
type TaskStatus string

// Task result statuses.
const (
	TaskSuccess    TaskStatus = "success"
	TaskFailure    TaskStatus = "failure"
	TaskInProgress TaskStatus = "in_progress"
	TaskQueued     TaskStatus = "queued"
	TaskRejected   TaskStatus = "rejected"
)

// ErrorDetails carries structured failure information inside a TaskResult.
type ErrorDetails struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// TaskResult is the single logical answer to a TaskRequest, correlated
// through the envelope's correlation_id.
type TaskResult struct {
	RequestID     string          `json:"request_id"`
	ExecutingAIID string          `json:"executing_ai_id,omitempty"`
	Status        TaskStatus      `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ErrorDetails  *ErrorDetails   `json:"error_details,omitempty"`
}

// MessageType implements Payload.
func (r *TaskResult) MessageType() string { return TypeTaskResult }

// Validate checks the minimal required fields of a result.
func (r *TaskResult) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", errors.ErrInvalidPayload)
	}
	switch r.Status {
	case TaskSuccess, TaskFailure, TaskInProgress, TaskQueued, TaskRejected:
	default:
		return fmt.Errorf("%w: unrecognized task status %q", errors.ErrInvalidPayload, r.Status)
	}
	return nil
}

// Acknowledgement confirms receipt of a message whose QoS requested it.
// It reflects receipt, not successful processing.
type Acknowledgement struct {
	Status          string    `json:"status"`
	AckTimestamp    time.Time `json:"ack_timestamp"`
	TargetMessageID string    `json:"target_message_id"`
}

// MessageType implements Payload.
func (a *Acknowledgement) MessageType() string { return TypeAcknowledgement }

// Validate checks the minimal required fields of an acknowledgement.
func (a *Acknowledgement) Validate() error {
	if a.TargetMessageID == "" {
		return fmt.Errorf("%w: target_message_id is required", errors.ErrInvalidPayload)
	}
	return nil
}
