package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	EventRequestSubmitted = "timeoff.request.submitted"
	EventRequestApproved  = "timeoff.request.approved"
	EventRequestDenied    = "timeoff.request.denied"
	EventRequestCancelled = "timeoff.request.cancelled"

	EventAccrualCompleted    = "timeoff.accrual.completed"
	EventPayrollProcessed    = "timeoff.payroll.processed"
	EventCarryoverCompleted  = "timeoff.carryover.completed"
	EventExpirationCompleted = "timeoff.expiration.completed"
)

// ExchangeTimeOffEvents is the topic exchange all domain events go to.
const ExchangeTimeOffEvents = "timeoff.events"

// Upstream payroll integration. The worker consumes completed payroll
// runs from the payroll system's exchange to drive hours-worked accrual.
const (
	ExchangePayrollEvents    = "payroll.events"
	EventPayrollRunCompleted = "payroll.run.completed"
	QueuePayrollRuns         = "timeoff.payroll_runs"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// RequestEvent is published on request workflow transitions
type RequestEvent struct {
	RequestID        string `json:"request_id"`
	CompanyID        string `json:"company_id"`
	EmployeeID       string `json:"employee_id"`
	PolicyID         string `json:"policy_id"`
	Status           string `json:"status"`
	RequestedMinutes int64  `json:"requested_minutes"`
	ActorID          string `json:"actor_id"`
}

// EngineRunEvent is published when a batch engine run completes
type EngineRunEvent struct {
	Engine     string `json:"engine"`
	TargetDate string `json:"target_date"`
	CompanyID  string `json:"company_id,omitempty"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
