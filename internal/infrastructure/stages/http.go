package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/saga"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderTransactionID = "X-Transaction-Id"
	DefaultHTTPTries    = 3
)

// Client is satisfied by *http.Client and *pester.Client
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewRetryingClient retries transport errors and 5xx answers with exponential backoff
func NewRetryingClient(l logger.Logger) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = DefaultHTTPTries
	client.LogHook = func(e pester.ErrEntry) {
		l.Warn("Retrying stage request",
			logger.Field{Key: "method", Value: e.Method},
			logger.Field{Key: "url", Value: e.URL},
			logger.Field{Key: "error", Value: e.Err},
		)
	}
	return client
}

// HTTPStage POSTs to {baseURL}/{path} going forward and DELETEs {baseURL}/{path}/{transactionID}
// to compensate. Both requests carry the transaction id header; any 2xx answer is success.
type HTTPStage struct {
	base
	client   Client
	endpoint string
}

func NewHTTPStage(info, baseURL, path string, client Client) *HTTPStage {
	return &HTTPStage{
		base:     base{info: info},
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
	}
}

type stageRequest struct {
	TransactionID string `json:"transaction_id"`
	Stage         string `json:"stage"`
}

func (s *HTTPStage) Process(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if err := s.begin(); err != nil {
		return s.Status(), err
	}

	body, err := json.Marshal(stageRequest{TransactionID: transactionID.String(), Stage: s.info})
	if err != nil {
		return s.finish(errors.Wrap(err, "failed to marshal stage request"))
	}

	return s.finish(s.send(ctx, http.MethodPost, s.endpoint, transactionID, body))
}

func (s *HTTPStage) Rollback(ctx context.Context, transactionID uuid.UUID) (saga.ExecutionStatus, error) {
	if err := s.send(ctx, http.MethodDelete, s.endpoint+"/"+transactionID.String(), transactionID, nil); err != nil {
		return saga.Faulted, err
	}
	return saga.Completed, nil
}

func (s *HTTPStage) send(ctx context.Context, method, url string, transactionID uuid.UUID, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", method)
	}
	req.Header.Set(HeaderTransactionID, transactionID.String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	return nil
}
