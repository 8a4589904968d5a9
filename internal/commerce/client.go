// Package commerce is the HTTP client for the commerce backend: it verifies
// staff credentials and serves customer loyalty profiles.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/customer"
	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBody = 1 << 20

// ErrUnavailable wraps every failure that is not an answer from the backend:
// transport errors, 5xx responses and an open circuit.
var ErrUnavailable = errors.New("commerce backend unavailable")

type Config struct {
	BaseURL string
	Timeout time.Duration
	// FailureThreshold consecutive failures open the circuit for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *zap.Logger
}

// statusError is a non-2xx answer from the backend.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid commerce base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("commerce")

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "commerce",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// a 4xx is the backend answering, not the backend failing
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500)
		},
	})

	return &Client{
		baseURL: base.String(),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		log:     log,
	}, nil
}

type verifyRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// VerifyCredentials implements authz.CredentialVerifier.
func (c *Client) VerifyCredentials(ctx context.Context, email, password string) (domain.Identity, error) {
	payload, err := json.Marshal(verifyRequest{Email: email, Password: password})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("marshal verify request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/auth/verify", payload)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusUnauthorized || se.code == http.StatusForbidden) {
			return domain.Identity{}, domain.ErrInvalidCredentials
		}
		return domain.Identity{}, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode verify response: %v", ErrUnavailable, err)
	}

	identity := domain.Identity{ID: resp.ID, Email: resp.Email, Name: resp.Name}
	for _, name := range resp.Roles {
		role, err := domain.ParseRole(name)
		if err != nil {
			c.log.Debug("ignoring unknown role", zap.String("role", name), zap.String("user_id", resp.ID))
			continue
		}
		identity.Roles = identity.Roles.Add(role)
	}
	return identity, nil
}

// GetLoyaltyProfile implements customer.ProfileSource.
func (c *Client) GetLoyaltyProfile(ctx context.Context, customerID string) (*customer.Profile, error) {
	body, err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/loyalty", nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, &domain.Error{Kind: domain.KindNotFound, Detail: "customer " + customerID + " not found"}
		}
		return nil, err
	}

	var profile customer.Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("%w: decode loyalty profile: %v", ErrUnavailable, err)
	}
	if profile.CustomerID == "" {
		profile.CustomerID = customerID
	}
	return &profile, nil
}

// do sends one request through the breaker and returns the 2xx body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err == nil {
		return body, nil
	}

	var se *statusError
	if errors.As(err, &se) && se.code < 500 {
		return nil, err
	}
	c.log.Warn("commerce request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(err))
	return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
}
