package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Delivery is one request received by an IngestServer.
type Delivery struct {
	Header http.Header
	Body   []byte
}

// Decode unmarshals the delivered body into v.
func (d Delivery) Decode(v any) error {
	return json.Unmarshal(d.Body, v)
}

// IngestServer is a fake ingestion endpoint that records every POST to /ingest.
type IngestServer struct {
	// Status is the HTTP status returned to the client; zero means 202.
	Status int

	mu         sync.Mutex
	deliveries []Delivery
	server     *httptest.Server
}

// NewIngestServer starts a fake ingestion endpoint and closes it when the test ends.
func NewIngestServer(t *testing.T) *IngestServer {
	t.Helper()
	s := &IngestServer{}
	r := chi.NewRouter()
	r.Post("/ingest", s.handle)
	s.server = httptest.NewServer(r)
	t.Cleanup(s.server.Close)
	return s
}

// Endpoint is the full URL records should be delivered to.
func (s *IngestServer) Endpoint() string {
	return s.server.URL + "/ingest"
}

// Deliveries returns the requests received so far.
func (s *IngestServer) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

func (s *IngestServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.deliveries = append(s.deliveries, Delivery{Header: r.Header.Clone(), Body: body})
	status := s.Status
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
	io.WriteString(w, `{"error":"rejected by test"}`)
}
