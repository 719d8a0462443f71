package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var errMissingIngestURL = errors.New("ingest url is required")

// ForwarderConfig carries the delivery settings.
type ForwarderConfig struct {
	IngestURL      string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Forwarder posts each raw notification payload to the hub. One POST per
// event: no batching, no retry, no queue. A failed delivery is the event's
// end of the line.
type Forwarder struct {
	ingestURL string
	client    *http.Client
	logger    *zap.Logger
}

// NewForwarder validates configuration and returns a Forwarder. A missing
// ingest URL is a startup failure, not a per-event one.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if strings.TrimSpace(cfg.IngestURL) == "" {
		return nil, errMissingIngestURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{ingestURL: cfg.IngestURL, client: client, logger: logger}, nil
}

// Forward posts the payload verbatim. The hub's response body is ignored;
// any transport error or non-2xx status fails this one event only.
func (f *Forwarder) Forward(ctx context.Context, payload []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, f.ingestURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := f.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("ingest endpoint returned status %d", response.StatusCode)
	}

	f.logger.Debug("event forwarded", zap.Int("bytes", len(payload)))
	return nil
}
