package http

import (
	"encoding/json"
	"time"

	"github.com/allisson/possync/internal/outbox/domain"
)

// RecordResponse is the HTTP representation of a change record.
type RecordResponse struct {
	ID            int64           `json:"id"`
	TerminalID    string          `json:"terminal_id"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Operation     string          `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	EmployeeID    string          `json:"employee_id"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SyncedAt      *time.Time      `json:"synced_at,omitempty"`
}

func toRecordResponse(record *domain.ChangeRecord) RecordResponse {
	return RecordResponse{
		ID:            record.ID,
		TerminalID:    record.TerminalID,
		EntityType:    string(record.EntityType),
		EntityID:      record.EntityID,
		Operation:     string(record.Operation),
		Payload:       json.RawMessage(record.Payload),
		EmployeeID:    record.EmployeeID,
		Status:        string(record.Status),
		Attempts:      record.Attempts,
		LastError:     record.LastError,
		LastAttemptAt: record.LastAttemptAt,
		CreatedAt:     record.CreatedAt,
		SyncedAt:      record.SyncedAt,
	}
}

func toRecordResponses(records []*domain.ChangeRecord) []RecordResponse {
	responses := make([]RecordResponse, len(records))
	for i, record := range records {
		responses[i] = toRecordResponse(record)
	}
	return responses
}
