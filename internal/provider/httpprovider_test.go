package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kyt/internal/chain"
)

func testRegistry() *chain.Registry {
	return chain.NewRegistry()
}

func testHTTPConfig(name, url string) HTTPProviderConfig {
	return HTTPProviderConfig{
		Name:              name,
		BaseURL:           url,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		RetryBaseDelay:    time.Millisecond,
		RetryMaxDelay:     10 * time.Millisecond,
		CircuitThreshold:  3,
		CircuitCooldown:   20 * time.Millisecond,
		RequestTimeout:    time.Second,
	}
}

const (
	testEthFrom     = "0x111111111111111111111111111111111111111a"
	testEthTo       = "0x222222222222222222222222222222222222222b"
	testEthInternal = "0x333333333333333333333333333333333333333c"

	testBTCInput  = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
	testBTCOutput = "3P14159f73E4gFr7JterCCQh9QjiTjiZrG"
)

func TestHTTPProvider_GetTransaction_Account(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"from":"` + testEthFrom + `","to":"` + testEthTo + `","value":"1000000000000000000","internal_transfers":[{"from":"` + testEthInternal + `","to":"` + testEthTo + `","value":"500000000000000000"}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(testHTTPConfig("t", srv.URL), testRegistry())
	rec, err := p.GetTransaction(context.Background(), "ethereum", "0xtx")
	require.NoError(t, err)
	assert.Equal(t, testEthFrom, rec.From)
	assert.Equal(t, testEthTo, rec.To)
	assert.InDelta(t, 1.0, rec.Value, 1e-9)
	require.Len(t, rec.Internal, 1)
	assert.InDelta(t, 0.5, rec.Internal[0].Value, 1e-9)
}

func TestHTTPProvider_GetTransaction_UTXO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"inputs":[{"address":"` + testBTCInput + `","value":0.5},{"address":"","value":6.25}],"outputs":[{"address":"` + testBTCOutput + `","value":0.49}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(testHTTPConfig("t", srv.URL), testRegistry())
	rec, err := p.GetTransaction(context.Background(), "bitcoin", "txid")
	require.NoError(t, err)
	require.Len(t, rec.Inputs, 2)
	assert.Equal(t, testBTCInput, rec.Inputs[0].Address)
	assert.Equal(t, "", rec.Inputs[1].Address)

	src := rec.SourceAddresses()
	assert.Contains(t, src, testBTCInput)
	assert.NotContains(t, src, "")
}

func TestHTTPProvider_GetTransaction_DropsStructurallyInvalidAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"from":"not-an-address","to":"` + testEthTo + `","value":"1"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(testHTTPConfig("t", srv.URL), testRegistry())
	rec, err := p.GetTransaction(context.Background(), "ethereum", "0xtx")
	require.NoError(t, err)
	assert.Empty(t, rec.From, "a structurally invalid address must be dropped, not handed to the Tracer")
	assert.Empty(t, rec.SourceAddresses())
}

func TestHTTPProvider_NotFoundNeverOpensCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testHTTPConfig("t", srv.URL)
	cfg.MaxRetries = 0
	p := NewHTTPProvider(cfg, testRegistry())

	for i := 0; i < 5; i++ {
		_, err := p.GetTransaction(context.Background(), "ethereum", "missing")
		require.Error(t, err)
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, ErrTxNotFound, perr.Kind)
	}

	assert.Equal(t, StateClosed, p.breaker.State())
}

func TestHTTPProvider_ServerErrorOpensCircuitAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testHTTPConfig("t", srv.URL)
	cfg.MaxRetries = 0
	cfg.CircuitThreshold = 2
	p := NewHTTPProvider(cfg, testRegistry())

	_, err1 := p.GetTransaction(context.Background(), "ethereum", "a")
	require.Error(t, err1)
	_, err2 := p.GetTransaction(context.Background(), "ethereum", "b")
	require.Error(t, err2)

	assert.Equal(t, StateOpen, p.breaker.State())

	_, err3 := p.GetTransaction(context.Background(), "ethereum", "c")
	require.Error(t, err3)
	var perr *Error
	require.ErrorAs(t, err3, &perr)
	assert.Equal(t, ErrProviderDown, perr.Kind)
}

func TestHTTPProvider_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tags":["MIXER"],"balance":1.5,"tx_count":10}`))
	}))
	defer srv.Close()

	cfg := testHTTPConfig("t", srv.URL)
	cfg.MaxRetries = 3
	cfg.CircuitThreshold = 10
	p := NewHTTPProvider(cfg, testRegistry())

	meta, err := p.GetAddressMeta(context.Background(), "ethereum", "0xabc")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, meta.Balance, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPProvider_HealthReportsCircuitState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testHTTPConfig("t", srv.URL)
	cfg.MaxRetries = 0
	cfg.CircuitThreshold = 1
	p := NewHTTPProvider(cfg, testRegistry())

	_, _ = p.GetTransaction(context.Background(), "ethereum", "a")

	h := p.Health(context.Background())
	assert.Equal(t, string(StateOpen), h.CircuitState)
	assert.EqualValues(t, 1, h.RequestCount)
}
