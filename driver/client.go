package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Ingester delivers normalized log records to a collector. Processors hold
// their ingester behind this interface so tests can substitute an in-memory
// one.
type Ingester interface {
	Ingest(ctx context.Context, msg LogMessage) error
}

// IngesterFunc constructs the Ingester a new processor ships records to.
type IngesterFunc func(ingestURL string) Ingester

// IngestClient posts log records to the HTTP ingest API.
type IngestClient struct {
	ingestURL string
	client    *http.Client
}

// NewIngestClient returns a client for the ingest API rooted at ingestURL.
func NewIngestClient(ingestURL string) *IngestClient {
	return &IngestClient{
		ingestURL: ingestURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ingest posts msg to the collector as a one-element JSON array. A transport
// failure, a status outside 2xx or a response body that is not JSON is an
// ingest error; the decoded response is otherwise discarded.
func (c *IngestClient) Ingest(ctx context.Context, msg LogMessage) error {
	body, err := json.Marshal([]LogMessage{msg})
	if err != nil {
		return errors.Wrap(err, "encoding log message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ingestURL+"/logs", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building ingest request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting log message")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("ingest API returned status %d", resp.StatusCode)
	}

	var result interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, "decoding ingest response")
	}
	return nil
}
