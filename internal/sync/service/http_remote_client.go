package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/allisson/possync/internal/errors"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	"github.com/allisson/possync/internal/sync/domain"
)

// submitRequest is the wire payload for a batch submission.
type submitRequest struct {
	Records []submitRecord `json:"records"`
}

type submitRecord struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	EmployeeID string          `json:"employee_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// submitResponse is the wire payload returned by the back office.
type submitResponse struct {
	Results []submitResult `json:"results"`
}

type submitResult struct {
	RecordID  int64  `json:"record_id"`
	Status    string `json:"status"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason"`
}

const (
	resultStatusApplied   = "applied"
	resultStatusDuplicate = "duplicate"
	resultStatusRejected  = "rejected"
)

// httpRemoteClient implements RemoteClient over HTTP with bearer token
// authentication. Reset swaps the underlying http.Client, so all access to
// it goes through the mutex.
type httpRemoteClient struct {
	baseURL   string
	authToken string
	timeout   time.Duration

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPRemoteClient creates a RemoteClient that submits batches to the
// back office API at baseURL using bearer token authentication.
func NewHTTPRemoteClient(baseURL string, authToken string, timeout time.Duration) RemoteClient {
	return &httpRemoteClient{
		baseURL:   baseURL,
		authToken: authToken,
		timeout:   timeout,
		client:    newHTTPClient(timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
}

func (c *httpRemoteClient) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// SubmitBatch posts the records to the terminal's batch endpoint and decodes
// the per-record verdicts.
func (c *httpRemoteClient) SubmitBatch(ctx context.Context, terminalID string, records []*outboxDomain.ChangeRecord) (*domain.BatchResult, error) {
	payload := submitRequest{Records: make([]submitRecord, 0, len(records))}
	for _, record := range records {
		payload.Records = append(payload.Records, submitRecord{
			ID:         record.ID,
			EntityType: string(record.EntityType),
			EntityID:   record.EntityID,
			Operation:  string(record.Operation),
			Payload:    json.RawMessage(record.Payload),
			EmployeeID: record.EmployeeID,
			CreatedAt:  record.CreatedAt,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode batch payload")
	}

	url := fmt.Sprintf("%s/v1/terminals/%s/batches", c.baseURL, terminalID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build batch request")
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.authToken)

	start := time.Now()
	response, err := c.httpClient().Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: batch submission failed: %v", apperrors.ErrNetworkFailure, err)
	}
	defer func() { _ = response.Body.Close() }()

	if err := c.checkStatus(response.StatusCode); err != nil {
		return nil, err
	}

	var decoded submitResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode batch response: %v", apperrors.ErrNetworkFailure, err)
	}
	if len(decoded.Results) != len(records) {
		return nil, fmt.Errorf("%w: expected %d results, got %d", apperrors.ErrNetworkFailure, len(records), len(decoded.Results))
	}

	batch := &domain.BatchResult{
		Results: make([]domain.RecordResult, 0, len(decoded.Results)),
		Latency: time.Since(start),
	}
	for _, result := range decoded.Results {
		batch.Results = append(batch.Results, domain.RecordResult{
			RecordID:  result.RecordID,
			Accepted:  result.Status == resultStatusApplied,
			Duplicate: result.Status == resultStatusDuplicate,
			Rejected:  result.Status == resultStatusRejected,
			Retryable: result.Status == resultStatusRejected && result.Retryable,
			Reason:    result.Reason,
		})
	}
	return batch, nil
}

// Ping issues a lightweight health request against the back office API.
func (c *httpRemoteClient) Ping(ctx context.Context) (int64, error) {
	url := fmt.Sprintf("%s/v1/health", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to build ping request")
	}
	request.Header.Set("Authorization", "Bearer "+c.authToken)

	start := time.Now()
	response, err := c.httpClient().Do(request)
	if err != nil {
		return 0, fmt.Errorf("%w: ping failed: %v", apperrors.ErrNetworkFailure, err)
	}
	defer func() { _ = response.Body.Close() }()

	latency := time.Since(start).Milliseconds()
	if err := c.checkStatus(response.StatusCode); err != nil {
		return latency, err
	}
	return latency, nil
}

// Reset drops the pooled connections and swaps in a fresh http.Client.
func (c *httpRemoteClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.CloseIdleConnections()
	c.client = newHTTPClient(c.timeout)
}

func (c *httpRemoteClient) checkStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: back office refused credentials (status %d)", apperrors.ErrConfiguration, statusCode)
	case statusCode >= 400 && statusCode < 500:
		return fmt.Errorf("%w: back office rejected the request (status %d)", apperrors.ErrBusinessRejection, statusCode)
	default:
		return fmt.Errorf("%w: back office returned status %d", apperrors.ErrNetworkFailure, statusCode)
	}
}
