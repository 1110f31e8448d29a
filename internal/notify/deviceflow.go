package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// FlowStatus is the lifecycle state of a device-code authorization flow.
type FlowStatus string

const (
	FlowPending FlowStatus = "pending"
	FlowSuccess FlowStatus = "success"
	FlowError   FlowStatus = "error"
)

// deviceFlowTTL is how long a terminal (success/error) flow is retained
// before garbage collection, matching the Python original's 30-minute
// window.
const deviceFlowTTL = 30 * time.Minute

// Flow tracks one in-progress or completed device-code authorization.
type Flow struct {
	ID              string
	Profile         string
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
	Interval        time.Duration
	Status          FlowStatus
	Error           string
	finishedAt      time.Time
}

// DeviceFlowRegistry launches and tracks background device-code polls, one
// per StartDeviceFlow call, so a caller can start a flow, hand the user_code
// to an admin, and poll Status separately.
type DeviceFlowRegistry struct {
	cache *TokenCache

	mu    sync.Mutex
	flows map[string]*Flow
}

// NewDeviceFlowRegistry constructs a registry backed by cache.
func NewDeviceFlowRegistry(cache *TokenCache) *DeviceFlowRegistry {
	return &DeviceFlowRegistry{cache: cache, flows: make(map[string]*Flow)}
}

// StartDeviceFlow initiates a device-code authorization for profile and
// launches a background goroutine that polls Microsoft Graph's token
// endpoint until the user completes sign-in, the code expires, or polling
// fails. The returned Flow reflects the initial "pending" state; callers
// poll Status(flowID) for progress.
func (r *DeviceFlowRegistry) StartDeviceFlow(ctx context.Context, profile string, cfg *oauth2.Config) (*Flow, error) {
	r.cache.mu.Lock()
	r.cache.configs[profile] = cfg
	r.cache.mu.Unlock()

	daResp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: start device flow: %w", err)
	}

	flow := &Flow{
		ID:              uuid.New().String(),
		Profile:         profile,
		UserCode:        daResp.UserCode,
		VerificationURI: daResp.VerificationURI,
		ExpiresAt:       daResp.Expiry,
		Interval:        time.Duration(daResp.Interval) * time.Second,
		Status:          FlowPending,
	}

	r.mu.Lock()
	r.flows[flow.ID] = flow
	r.mu.Unlock()

	go r.poll(cfg, profile, flow.ID, daResp)

	return flow, nil
}

func (r *DeviceFlowRegistry) poll(cfg *oauth2.Config, profile, flowID string, daResp *oauth2.DeviceAuthResponse) {
	// Polling runs detached from the request that started it; it must not
	// inherit the request's cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), time.Until(daResp.Expiry)+time.Minute)
	defer cancel()

	token, err := cfg.DeviceAccessToken(ctx, daResp)

	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.flows[flowID]
	if !ok {
		return
	}
	if err != nil {
		flow.Status = FlowError
		flow.Error = err.Error()
		flow.finishedAt = time.Now()
		return
	}

	if saveErr := r.cache.Store(ctx, profile, token); saveErr != nil {
		flow.Status = FlowError
		flow.Error = saveErr.Error()
		flow.finishedAt = time.Now()
		return
	}
	flow.Status = FlowSuccess
	flow.finishedAt = time.Now()
}

// Status returns the current state of flowID, and ok=false if unknown or
// garbage-collected.
func (r *DeviceFlowRegistry) Status(flowID string) (Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.flows[flowID]
	if !ok {
		return Flow{}, false
	}
	return *flow, true
}

// GC purges terminal flows older than deviceFlowTTL. Callers run this
// periodically (e.g. alongside the scheduler's other sweeps).
func (r *DeviceFlowRegistry) GC(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, flow := range r.flows {
		if flow.Status == FlowPending {
			continue
		}
		if now.Sub(flow.finishedAt) >= deviceFlowTTL {
			delete(r.flows, id)
		}
	}
}
