package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/requestcontext"
)

// HTTPSink POSTs each payload to a fixed sink URL.
type HTTPSink struct {
	url    string
	client *http.Client
}

func NewHTTPSink(url string, timeout time.Duration, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}
	return &HTTPSink{url: url, client: client}
}

// Deliver returns an upstream_error for network failures and non-2xx responses.
// 4xx responses other than 408 and 429 are wrapped as permanent so they are not retried.
func (s *HTTPSink) Deliver(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(msg.Payload))
	if err != nil {
		return backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "build sink request"))
	}
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	if len(msg.Roles) > 0 {
		req.Header.Set(requestcontext.RolesHeader, msg.Identity().RolesHeader())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "sink unreachable")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	upstreamErr := dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("sink responded %d", resp.StatusCode))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(upstreamErr)
	}
	return upstreamErr
}
