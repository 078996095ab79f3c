package delivery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/pipemetrics/internal/delivery"
	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/testutil"
)

func record() domain.PipelineMetricsRecord {
	return domain.PipelineMetricsRecord{
		Provider:   "github",
		Repository: "waabox/pipemetrics",
		RunID:      "1001",
		Status:     domain.StatusSuccess,
		Mode:       domain.ModeInline,
		StartedAt:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Jobs:       []domain.NormalizedJob{},
	}
}

func TestDeliver_PostsRecordWithHeaders(t *testing.T) {
	ingest := testutil.NewIngestServer(t)
	client := delivery.NewClient(ingest.Endpoint(), "secret", time.Second)

	require.NoError(t, client.Deliver(context.Background(), record()))

	deliveries := ingest.Deliveries()
	require.Len(t, deliveries, 1)
	d := deliveries[0]
	assert.Equal(t, "application/json", d.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", d.Header.Get("Authorization"))
	_, err := uuid.Parse(d.Header.Get("Idempotency-Key"))
	assert.NoError(t, err, "Idempotency-Key should be a UUID")

	var got domain.PipelineMetricsRecord
	require.NoError(t, d.Decode(&got))
	assert.Equal(t, record(), got)
	assert.NotContains(t, string(d.Body), "null")
}

func TestDeliver_NoAuthorizationWithoutAPIKey(t *testing.T) {
	ingest := testutil.NewIngestServer(t)
	client := delivery.NewClient(ingest.Endpoint(), "", time.Second)

	require.NoError(t, client.Deliver(context.Background(), record()))
	assert.Empty(t, ingest.Deliveries()[0].Header.Get("Authorization"))
}

func TestDeliver_NonSuccessStatusIsTransportError(t *testing.T) {
	ingest := testutil.NewIngestServer(t)
	ingest.Status = http.StatusBadGateway
	client := delivery.NewClient(ingest.Endpoint(), "", time.Second)

	err := client.Deliver(context.Background(), record())
	var transportErr *delivery.TransportError
	require.True(t, errors.As(err, &transportErr), "expected TransportError, got %v", err)
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.False(t, transportErr.Timeout)
	assert.Contains(t, err.Error(), ingest.Endpoint())
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Contains(t, err.Error(), "rejected by test")
}

func TestDeliver_TimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := delivery.NewClient(srv.URL, "", 50*time.Millisecond)
	err := client.Deliver(context.Background(), record())

	var transportErr *delivery.TransportError
	require.True(t, errors.As(err, &transportErr), "expected TransportError, got %v", err)
	assert.True(t, transportErr.Timeout)
	assert.True(t, strings.Contains(err.Error(), "timed out after 50ms"), "got %q", err.Error())
	assert.Contains(t, err.Error(), srv.URL)
}

func TestDeliver_ConnectionRefusedIncludesCause(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := delivery.NewClient(endpoint, "", time.Second)
	err := client.Deliver(context.Background(), record())

	var transportErr *delivery.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 0, transportErr.StatusCode)
	assert.NotNil(t, transportErr.Err)
	assert.Contains(t, err.Error(), endpoint)
}

func TestValidateEndpoint(t *testing.T) {
	require.NoError(t, delivery.ValidateEndpoint("https://metrics.example.com/ingest"))
	require.NoError(t, delivery.ValidateEndpoint("http://localhost:8080/ingest"))

	for _, bad := range []string{"", "metrics.example.com", "ftp://metrics.example.com", "https://"} {
		err := delivery.ValidateEndpoint(bad)
		var inputErr *domain.InputError
		if assert.ErrorAs(t, err, &inputErr, "endpoint %q", bad) {
			assert.Equal(t, "endpoint", inputErr.Field)
		}
	}
}
