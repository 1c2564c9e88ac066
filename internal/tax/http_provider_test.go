package tax

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/order-totals/internal/cart"
	"github.com/noah-isme/order-totals/internal/resilience"
)

func TestHTTPRateProviderRate(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rates", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate":"9.5"}`))
	}))
	defer srv.Close()

	p := NewHTTPRateProvider(srv.URL+"/", time.Second)
	rate, err := p.Rate(context.Background(), RateRequest{
		Category: "books",
		Address:  &cart.Address{Country: "sg", PostalCode: "018956"},
		Store:    cart.Store{ID: 3},
	})
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.RequireFromString("9.5")))
	require.Equal(t, "category=books&country=SG&postal_code=018956&store_id=3", gotQuery)
}

func TestHTTPRateProviderNumericRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate":10}`))
	}))
	defer srv.Close()

	rate, err := NewHTTPRateProvider(srv.URL, time.Second).Rate(context.Background(), RateRequest{})
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(10)))
}

func TestHTTPRateProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPRateProvider(srv.URL, time.Second)
	_, err := p.Rate(context.Background(), RateRequest{Category: "books"})
	require.True(t, errors.Is(err, ErrRateServiceUnavailable))
	require.Error(t, p.Ping(context.Background(), time.Second))
}

func TestHTTPRateProviderThroughService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") == "food" {
			_, _ = w.Write([]byte(`{"rate":"5"}`))
			return
		}
		_, _ = w.Write([]byte(`{"rate":"20"}`))
	}))
	defer srv.Close()

	svc := Service{
		Settings: Settings{BasedOn: BasedOnBilling},
		Provider: NewHTTPRateProvider(srv.URL, time.Second),
	}
	ct := cart.Cart{BillingAddress: &cart.Address{Country: "DE"}}
	rate, err := svc.ProductRate(context.Background(), ct, cart.Line{TaxCategory: "food"})
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(5)))
}

func TestHTTPRateProviderPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPRateProvider(srv.URL, time.Second).Ping(context.Background(), 100*time.Millisecond))
}

func TestHTTPRateProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"rate":"7"}`))
	}))
	defer srv.Close()

	rate, err := NewHTTPRateProvider(srv.URL, time.Second).Rate(context.Background(), RateRequest{})
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(7)))
	require.Equal(t, int32(2), calls.Load())
}

func TestHTTPRateProviderDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPRateProvider(srv.URL, time.Second).Rate(context.Background(), RateRequest{})
	require.ErrorIs(t, err, ErrRateServiceUnavailable)
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPRateProviderBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPRateProvider(srv.URL, time.Second)
	p.Retry = resilience.Retry{MaxAttempts: 1}
	p.Breaker = resilience.NewBreaker(resilience.BreakerConfig{Target: "tax_rates", MinRequests: 1, OpenFor: time.Minute}, zerolog.Nop())

	_, err := p.Rate(context.Background(), RateRequest{})
	require.ErrorIs(t, err, ErrRateServiceUnavailable)

	_, err = p.Rate(context.Background(), RateRequest{})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(1), calls.Load())
}
