package webhookingress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// defaultForwardTimeout bounds a single downstream POST per §5's webhook
// forward timeout bound (≤10s).
const defaultForwardTimeout = 10 * time.Second

// HTTPForwarder POSTs a derived payload to a downstream URL, the same
// http.Client+context.WithTimeout shape internal/drive.Client and
// internal/duty.HTTPAvailabilityClient use, grounded here on
// covers_service.py's _forward_leave_entry (JSON body, optional secret
// header, classify 2xx as sent and anything else as failed without ever
// raising).
type HTTPForwarder struct {
	httpClient   *http.Client
	url          string
	secret       string
	secretHeader string
	log          zerolog.Logger
}

// NewHTTPForwarder constructs a forwarder against url. secretHeader
// defaults to "X-Leave-Webhook-Secret" (covers_service.py's
// COVERS_FORWARD_SECRET_HEADER default) when empty; secret being empty
// omits the header entirely.
func NewHTTPForwarder(url, secret, secretHeader string, timeout time.Duration, log zerolog.Logger) *HTTPForwarder {
	if secretHeader == "" {
		secretHeader = "X-Leave-Webhook-Secret"
	}
	if timeout <= 0 {
		timeout = defaultForwardTimeout
	}
	return &HTTPForwarder{
		httpClient:   &http.Client{Timeout: timeout},
		url:          url,
		secret:       secret,
		secretHeader: secretHeader,
		log:          log.With().Str("component", "webhookingress-forwarder").Logger(),
	}
}

// Forward POSTs payload as JSON. Every failure mode (timeout, connection
// refused, non-2xx status) is folded into a ForwardFailed result with a
// human-readable detail rather than propagated as an error, matching
// _forward_leave_entry's try/except-per-failure-kind structure.
func (f *HTTPForwarder) Forward(ctx context.Context, payload ForwardPayload) ForwardResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return ForwardResult{Status: ForwardFailed, Detail: fmt.Sprintf("encode payload: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return ForwardResult{Status: ForwardFailed, Detail: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if f.secret != "" {
		req.Header.Set(f.secretHeader, f.secret)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Warn().Err(err).Str("url", f.url).Msg("forwarding leave entry failed")
		return ForwardResult{Status: ForwardFailed, Detail: fmt.Sprintf("URL error: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := fmt.Sprintf("%d %s", resp.StatusCode, string(respBody))

	if resp.StatusCode >= 300 {
		f.log.Warn().Int("status", resp.StatusCode).Str("url", f.url).Msg("forwarding leave entry returned error status")
		return ForwardResult{Status: ForwardFailed, HTTPStatus: resp.StatusCode, Detail: detail}
	}
	return ForwardResult{Status: ForwardSent, HTTPStatus: resp.StatusCode, Detail: detail}
}
