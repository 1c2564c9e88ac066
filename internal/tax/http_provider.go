package tax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/order-totals/internal/resilience"
)

// ErrRateServiceUnavailable wraps non-2xx responses from the remote rate service.
var ErrRateServiceUnavailable = errors.New("tax rate service unavailable")

// HTTPRateProvider looks up rates from a remote service exposing GET /rates.
// Server errors are retried; an optional breaker stops calls while the service is down.
type HTTPRateProvider struct {
	BaseURL string
	Client  *http.Client
	Retry   resilience.Retry
	Breaker *resilience.Breaker
}

// NewHTTPRateProvider builds a provider with a traced client and two attempts per lookup.
func NewHTTPRateProvider(baseURL string, timeout time.Duration) *HTTPRateProvider {
	return &HTTPRateProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  HTTPClient(timeout),
		Retry:   resilience.Retry{MaxAttempts: 2, BaseBackoff: 50 * time.Millisecond, Jitter: 0.2},
	}
}

// HTTPClient returns an HTTP client whose transport records client spans.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

// Rate implements RateProvider.
func (p *HTTPRateProvider) Rate(ctx context.Context, req RateRequest) (decimal.Decimal, error) {
	q := url.Values{}
	if req.Category != "" {
		q.Set("category", req.Category)
	}
	if req.Address != nil {
		q.Set("country", strings.ToUpper(req.Address.Country))
		if req.Address.Region != "" {
			q.Set("region", req.Address.Region)
		}
		if req.Address.PostalCode != "" {
			q.Set("postal_code", req.Address.PostalCode)
		}
	}
	if req.Store.ID != 0 {
		q.Set("store_id", strconv.Itoa(req.Store.ID))
	}
	endpoint := p.BaseURL + "/rates"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var rate decimal.Decimal
	err := p.Retry.Do(ctx, p.Breaker, func(ctx context.Context) error {
		var err error
		rate, err = p.fetch(ctx, endpoint)
		return err
	})
	return rate, err
}

func (p *HTTPRateProvider) fetch(ctx context.Context, endpoint string) (decimal.Decimal, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, resilience.Permanent(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := p.client().Do(httpReq)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%w: status %d", ErrRateServiceUnavailable, resp.StatusCode)
		if resp.StatusCode < 500 {
			return decimal.Zero, resilience.Permanent(err)
		}
		return decimal.Zero, err
	}
	var body rateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return decimal.Zero, resilience.Permanent(fmt.Errorf("decode rate response: %w", err))
	}
	return body.Rate, nil
}

// Ping checks that the rate service answers its health endpoint.
func (p *HTTPRateProvider) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client().Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRateServiceUnavailable, resp.StatusCode)
	}
	return nil
}

func (p *HTTPRateProvider) client() *http.Client {
	if p.Client == nil {
		p.Client = HTTPClient(0)
	}
	return p.Client
}
