package duty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/cache"
)

// defaultAvailabilityTimeout bounds a single lookup per §5's concurrency
// model (availability calls ≤5s).
const defaultAvailabilityTimeout = 5 * time.Second

// HTTPAvailabilityClient fetches availability records from the external
// check-availability API, the outbound-HTTP-with-timeout shape grounded on
// internal/drive.Client the same way drive's own client is grounded on
// noah-isme-sma-adp-api's CutoverService.ping. Responses are optionally
// cached in cache, keyed by (tenant, day, period), the one named exception
// to this system's no-in-process-cache rule.
type HTTPAvailabilityClient struct {
	httpClient *http.Client
	baseURL    string
	tenantID   string
	cache      *cache.Cache
	cacheTTL   time.Duration
	log        zerolog.Logger
}

// NewHTTPAvailabilityClient constructs a client against baseURL (e.g.
// http://coveralreef.pythonanywhere.com). cch may be nil to disable
// caching.
func NewHTTPAvailabilityClient(baseURL, tenantID string, timeout time.Duration, cch *cache.Cache, cacheTTL time.Duration, log zerolog.Logger) *HTTPAvailabilityClient {
	if timeout <= 0 {
		timeout = defaultAvailabilityTimeout
	}
	return &HTTPAvailabilityClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		tenantID:   tenantID,
		cache:      cch,
		cacheTTL:   cacheTTL,
		log:        log.With().Str("component", "duty-availability-client").Logger(),
	}
}

type checkAvailabilityResponse struct {
	Available []struct {
		Email        string `json:"email"`
		LevelLabel   string `json:"level_label"`
		Subject      string `json:"subject"`
		PrimaryClass string `json:"primary_class"`
	} `json:"available"`
}

func (c *HTTPAvailabilityClient) cacheKey(dayCode, period string) string {
	return fmt.Sprintf("duty:availability:%s:%s:%s", c.tenantID, dayCode, period)
}

// FetchAvailable queries GET /api/check-availability?day=<dayCode>&period=<period>
// with a bounded timeout. A non-2xx response, a timeout, or a malformed
// body returns an error; the caller (Engine.AvailableForPod) treats any
// error as "fall back to the full known roster" per duty_admin.py's
// _fetch_availability_records.
func (c *HTTPAvailabilityClient) FetchAvailable(ctx context.Context, dayCode string, period string) ([]AvailabilityRecord, error) {
	var cached []AvailabilityRecord
	key := c.cacheKey(dayCode, period)
	if c.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	endpoint := c.baseURL + "/api/check-availability?" + url.Values{
		"day":    {dayCode},
		"period": {period},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("day", dayCode).Str("period", period).Msg("availability API unreachable")
		return nil, fmt.Errorf("duty: availability API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duty: availability API returned status %d", resp.StatusCode)
	}

	var decoded checkAvailabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("duty: decode availability response: %w", err)
	}

	records := dedupeByEmail(decoded.Available)
	if c.cacheTTL > 0 {
		c.cache.Set(ctx, key, records, c.cacheTTL)
	}
	return records, nil
}

// dedupeByEmail keeps only the first record for each email, lower-cased,
// mirroring duty_admin.py's _dedupe_by_email.
func dedupeByEmail(raw []struct {
	Email        string `json:"email"`
	LevelLabel   string `json:"level_label"`
	Subject      string `json:"subject"`
	PrimaryClass string `json:"primary_class"`
}) []AvailabilityRecord {
	seen := make(map[string]bool, len(raw))
	out := make([]AvailabilityRecord, 0, len(raw))
	for _, r := range raw {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, AvailabilityRecord{
			Email:        r.Email,
			LevelLabel:   r.LevelLabel,
			Subject:      r.Subject,
			PrimaryClass: r.PrimaryClass,
		})
	}
	return out
}
