package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/possync/internal/errors"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
)

func testRecords() []*outboxDomain.ChangeRecord {
	return []*outboxDomain.ChangeRecord{
		{
			ID:         1,
			TerminalID: "pos-001",
			EntityType: outboxDomain.EntityTypeTransaction,
			EntityID:   "txn-001",
			Operation:  outboxDomain.OperationCreate,
			Payload:    `{"total":1999}`,
			EmployeeID: "emp-001",
			CreatedAt:  time.Now().UTC(),
		},
		{
			ID:         2,
			TerminalID: "pos-001",
			EntityType: outboxDomain.EntityTypeInventoryChange,
			EntityID:   "sku-042",
			Operation:  outboxDomain.OperationUpdate,
			Payload:    `{"delta":-1}`,
			EmployeeID: "emp-001",
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func TestHTTPRemoteClient_SubmitBatch(t *testing.T) {
	var gotAuth string
	var gotPath string
	var gotRequest submitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		response := submitResponse{Results: []submitResult{
			{RecordID: 1, Status: resultStatusApplied},
			{RecordID: 2, Status: resultStatusDuplicate},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 5*time.Second)
	batch, err := client.SubmitBatch(context.Background(), "pos-001", testRecords())
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "/v1/terminals/pos-001/batches", gotPath)
	assert.Len(t, gotRequest.Records, 2)
	assert.Equal(t, "transaction", gotRequest.Records[0].EntityType)

	assert.Equal(t, []int64{1, 2}, batch.AcceptedIDs())
	assert.Empty(t, batch.RejectedResults())
	assert.Greater(t, batch.Latency, time.Duration(0))
}

func TestHTTPRemoteClient_SubmitBatchRejection(t *testing.T) {
	records := testRecords()
	third := *records[0]
	third.ID = 3
	third.EntityID = "txn-002"
	records = append(records, &third)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := submitResponse{Results: []submitResult{
			{RecordID: 1, Status: resultStatusApplied},
			{RecordID: 2, Status: resultStatusRejected, Reason: "unknown product"},
			{RecordID: 3, Status: resultStatusRejected, Retryable: true, Reason: "version conflict"},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 5*time.Second)
	batch, err := client.SubmitBatch(context.Background(), "pos-001", records)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, batch.AcceptedIDs())
	rejected := batch.RejectedResults()
	require.Len(t, rejected, 2)
	assert.Equal(t, int64(2), rejected[0].RecordID)
	assert.Equal(t, "unknown product", rejected[0].Reason)
	assert.False(t, rejected[0].Retryable)
	assert.Equal(t, int64(3), rejected[1].RecordID)
	assert.Equal(t, "version conflict", rejected[1].Reason)
	assert.True(t, rejected[1].Retryable)
}

func TestHTTPRemoteClient_SubmitBatchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 5*time.Second)
	_, err := client.SubmitBatch(context.Background(), "pos-001", testRecords())
	assert.ErrorIs(t, err, apperrors.ErrNetworkFailure)
}

func TestHTTPRemoteClient_SubmitBatchUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "wrong-token", 5*time.Second)
	_, err := client.SubmitBatch(context.Background(), "pos-001", testRecords())
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestHTTPRemoteClient_SubmitBatchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 20*time.Millisecond)
	_, err := client.SubmitBatch(context.Background(), "pos-001", testRecords())
	assert.ErrorIs(t, err, apperrors.ErrNetworkFailure)
}

func TestHTTPRemoteClient_SubmitBatchConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", time.Second)
	_, err := client.SubmitBatch(context.Background(), "pos-001", testRecords())
	assert.ErrorIs(t, err, apperrors.ErrNetworkFailure)
}

func TestHTTPRemoteClient_SubmitBatchResultCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := submitResponse{Results: []submitResult{{RecordID: 1, Status: resultStatusApplied}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 5*time.Second)
	_, err := client.SubmitBatch(context.Background(), "pos-001", testRecords())
	assert.ErrorIs(t, err, apperrors.ErrNetworkFailure)
}

func TestHTTPRemoteClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 5*time.Second)
	latency, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, int64(0))
}

func TestHTTPRemoteClient_PingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", time.Second)
	_, err := client.Ping(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNetworkFailure)
}

func TestHTTPRemoteClient_Reset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPRemoteClient(server.URL, "test-token", 5*time.Second)
	_, err := client.Ping(context.Background())
	require.NoError(t, err)

	client.Reset()

	_, err = client.Ping(context.Background())
	require.NoError(t, err)
}
