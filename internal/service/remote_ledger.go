package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

type remoteResponse struct {
	status int
	body   []byte
}

// RemoteLedger proxies the ledger operations to another instance running
// the embedded ledger, over its wire routes.
type RemoteLedger struct {
	baseURL   string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[remoteResponse]
	tokens    *ServiceTokens
	inventory InventoryLookup
	log       *zap.Logger
	now       func() time.Time

	initialized atomic.Bool
}

type RemoteLedgerOptions struct {
	Timeout   time.Duration
	Tokens    *ServiceTokens
	Inventory InventoryLookup
	// HTTPClient overrides the default client; its timeout is left untouched.
	HTTPClient *http.Client
}

func NewRemoteLedger(baseURL string, opts RemoteLedgerOptions, log *zap.Logger) *RemoteLedger {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	log = log.Named("remote_ledger")

	breaker := gobreaker.NewCircuitBreaker[remoteResponse](gobreaker.Settings{
		Name:        "ledger-remote",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &RemoteLedger{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		breaker:   breaker,
		tokens:    opts.Tokens,
		inventory: opts.Inventory,
		log:       log,
		now:       time.Now,
	}
}

// Initialize checks that the remote instance answers its health route.
func (l *RemoteLedger) Initialize(ctx context.Context) error {
	resp, err := l.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrUnavailable, resp.status)
	}
	l.initialized.Store(true)
	l.log.Info("remote ledger initialized", zap.String("url", l.baseURL))
	return nil
}

func (l *RemoteLedger) IsInitialized() bool {
	return l.initialized.Load()
}

func (l *RemoteLedger) RegisterAccess(ctx context.Context, access domain.VehicleAccess) domain.PersistenceResult {
	if !l.IsInitialized() {
		return domain.Failed(ErrNotInitialized)
	}
	access.Normalize(l.now())
	if err := access.Validate(); err != nil {
		return domain.Failed(err)
	}

	body, err := json.Marshal(access)
	if err != nil {
		return domain.Failed(fmt.Errorf("RemoteLedger.RegisterAccess: %w", err))
	}
	resp, err := l.do(ctx, http.MethodPost, "/registeraccess", body)
	if err != nil {
		return domain.Failed(err)
	}

	var res domain.PersistenceResult
	if len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, &res); err != nil {
			l.log.Warn("undecodable registeraccess response", zap.Int("status", resp.status), zap.Error(err))
		}
	}

	switch {
	case resp.status == http.StatusOK && res.State == domain.ResultCompletedWithWarnings:
		res.Err = errors.New(res.Message)
		return res
	case resp.status == http.StatusOK:
		if res.State == "" {
			res.State = domain.ResultCompleted
		}
		return res
	case resp.status == http.StatusBadRequest:
		return domain.Failed(fmt.Errorf("%w: %s", domain.ErrInvalidAccess, res.Message))
	case resp.status == http.StatusConflict:
		return domain.Failed(fmt.Errorf("%w: %s", repository.ErrDuplicateEntry, res.Message))
	default:
		return domain.Failed(fmt.Errorf("%w: registeraccess returned %d: %s", ErrUnavailable, resp.status, res.Message))
	}
}

func (l *RemoteLedger) GetParkingStatus(ctx context.Context, facilityID int) (*domain.ParkingStatus, error) {
	if !l.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if facilityID <= 0 {
		return nil, fmt.Errorf("%w: facilityId must be positive, got %d", domain.ErrInvalidAccess, facilityID)
	}

	resp, err := l.do(ctx, http.MethodGet, "/getparkingstatus/"+strconv.Itoa(facilityID), nil)
	if err != nil {
		return nil, err
	}
	busy := 0
	switch resp.status {
	case http.StatusOK:
		var snapshot domain.StatusSnapshot
		if err := json.Unmarshal(resp.body, &snapshot); err != nil {
			return nil, fmt.Errorf("%w: decode status: %w", ErrUnavailable, err)
		}
		busy = snapshot.BusySpaces
	case http.StatusNotFound:
	default:
		return nil, fmt.Errorf("%w: getparkingstatus returned %d", ErrUnavailable, resp.status)
	}

	total, err := totalSpaces(ctx, l.inventory, facilityID)
	if err != nil {
		return nil, err
	}
	status := domain.NewParkingStatus(facilityID, total, busy)
	return &status, nil
}

func (l *RemoteLedger) GetLastVehicleAccess(ctx context.Context, facilityID int, vehicleID string) (*domain.VehicleAccess, error) {
	if !l.IsInitialized() {
		return nil, ErrNotInitialized
	}
	vehicleID = domain.NormalizePlate(vehicleID)
	if facilityID <= 0 || vehicleID == "" {
		return nil, fmt.Errorf("%w: facilityId and vehicleId are required", domain.ErrInvalidAccess)
	}

	path := "/getlastvehicleaccess/" + strconv.Itoa(facilityID) + "/" + url.PathEscape(vehicleID)
	resp, err := l.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	switch resp.status {
	case http.StatusOK:
		var access domain.VehicleAccess
		if err := json.Unmarshal(resp.body, &access); err != nil {
			return nil, fmt.Errorf("%w: decode access: %w", ErrUnavailable, err)
		}
		return &access, nil
	case http.StatusNotFound:
		return nil, repository.ErrNotFound
	default:
		return nil, fmt.Errorf("%w: getlastvehicleaccess returned %d", ErrUnavailable, resp.status)
	}
}

// do runs one request through the breaker. Transport failures and 5xx
// responses count against the breaker; every failure maps to ErrUnavailable.
func (l *RemoteLedger) do(ctx context.Context, method, path string, body []byte) (remoteResponse, error) {
	resp, err := l.breaker.Execute(func() (remoteResponse, error) {
		req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return remoteResponse{}, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if l.tokens.Enabled() {
			token, err := l.tokens.Issue("ledger-client")
			if err != nil {
				return remoteResponse{}, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		httpResp, err := l.client.Do(req)
		if err != nil {
			return remoteResponse{}, err
		}
		defer httpResp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return remoteResponse{}, err
		}
		out := remoteResponse{status: httpResp.StatusCode, body: data}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return out, fmt.Errorf("server error %d", httpResp.StatusCode)
		}
		return out, nil
	})
	if err != nil {
		if resp.status >= http.StatusInternalServerError {
			// Keep the body: the server still reports a typed result.
			return resp, nil
		}
		l.log.Warn("remote ledger call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return remoteResponse{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

var _ Ledger = (*RemoteLedger)(nil)
