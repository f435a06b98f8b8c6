package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"go.uber.org/zap"

	"github.com/yourusername/kyt/internal/chain"
	"github.com/yourusername/kyt/internal/risk"
)

// HTTPProvider implements BlockchainProvider against an HTTPS JSON API,
// constructing paths as spec.md §6 describes:
// {base}/{chain_path}/dashboards/transaction/{tx_id} and
// {base}/{chain_path}/dashboards/address/{address}. It wraps every
// outbound call with rate limiting, retry-with-backoff, and a circuit
// breaker (spec.md §4.2), following the request-building style of the
// teacher's AlchemyProvider.rpcCall (internal/provider/alchemy/alchemy.go)
// and HTTPRPCClient.callEndpoint (src/chainadapter/rpc/http.go).
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string

	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *CircuitBreaker
	retry      RetryPolicy
	group      singleflight.Group

	chains       *chain.Registry
	requestCount atomic.Int64
	latestBlock  atomic.Uint64
	haveBlock    atomic.Bool

	log *zap.Logger
}

// HTTPProviderConfig configures an HTTPProvider. See spec.md §6's
// configuration table for field meaning.
type HTTPProviderConfig struct {
	Name              string
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	CircuitThreshold  int
	CircuitCooldown   time.Duration
	RequestTimeout    time.Duration
	Logger            *zap.Logger
}

// NewHTTPProvider builds an HTTPProvider wired to registry for chain path
// resolution.
func NewHTTPProvider(cfg HTTPProviderConfig, registry *chain.Registry) *HTTPProvider {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPProvider{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: NewRateLimiter(cfg.RequestsPerSecond, log),
		breaker: NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitCooldown, log),
		retry:   NewRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		chains:  registry,
		log:     log,
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// Health never fails (spec.md §4.2).
func (p *HTTPProvider) Health(ctx context.Context) Health {
	h := Health{
		CircuitState: string(p.breaker.State()),
		RequestCount: p.requestCount.Load(),
	}
	if p.haveBlock.Load() {
		b := p.latestBlock.Load()
		h.LatestBlock = &b
	}
	return h
}

// dashboardResponse is the wire shape returned by the transaction and
// address dashboard endpoints; fields are a superset covering both chain
// families so one decode step handles both (spec.md §6 "tolerates minor
// schema drift: unknown fields are ignored; missing optional fields
// default").
type dashboardResponse struct {
	// transaction, ACCOUNT family
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Internal []struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Value string `json:"value"`
	} `json:"internal_transfers"`

	// transaction, UTXO family
	Inputs []struct {
		Address string  `json:"address"`
		Value   float64 `json:"value"`
	} `json:"inputs"`
	Outputs []struct {
		Address string  `json:"address"`
		Value   float64 `json:"value"`
	} `json:"outputs"`
	CoinbaseValue float64 `json:"coinbase_value"`

	// address metadata
	Tags      []string `json:"tags"`
	Balance   float64  `json:"balance"`
	TxCount   int      `json:"tx_count"`
	FirstSeen int64    `json:"first_seen"`
	LastSeen  int64    `json:"last_seen"`
	Label     string   `json:"label"`
	FundingTx string   `json:"funding_tx"`
}

func (p *HTTPProvider) GetTransaction(ctx context.Context, chainID, txID string) (TxRecord, error) {
	spec, err := p.chains.Get(chainID)
	if err != nil {
		return TxRecord{}, err
	}

	path := fmt.Sprintf("%s/%s/dashboards/transaction/%s", p.baseURL, spec.APIPath, txID)
	body, err := p.fetch(ctx, "tx:"+chainID+":"+txID, path)
	if err != nil {
		return TxRecord{}, err
	}

	var resp dashboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TxRecord{}, newError(ErrDecode, p.name, "malformed transaction payload", err)
	}

	record := TxRecord{ID: txID, Chain: chainID, Family: spec.Family}
	switch spec.Family {
	case chain.FamilyAccount:
		record.From = p.normalizeAddress(spec, resp.From)
		record.To = p.normalizeAddress(spec, resp.To)
		record.Value = parseFloat(resp.Value, spec.Decimals)
		for _, it := range resp.Internal {
			record.Internal = append(record.Internal, InternalTransfer{
				From: p.normalizeAddress(spec, it.From), To: p.normalizeAddress(spec, it.To),
				Value: parseFloat(it.Value, spec.Decimals),
			})
		}
	case chain.FamilyUTXO:
		for _, in := range resp.Inputs {
			record.Inputs = append(record.Inputs, UTXOEntry{Address: p.normalizeAddress(spec, in.Address), Value: in.Value})
		}
		for _, out := range resp.Outputs {
			record.Outputs = append(record.Outputs, UTXOEntry{Address: p.normalizeAddress(spec, out.Address), Value: out.Value})
		}
		record.CoinbaseValue = resp.CoinbaseValue
	}

	return record, nil
}

// normalizeAddress applies chain.Spec.ValidateAddress to a provider-supplied
// address before it can enter the BFS frontier (spec.md §4.2 tolerates
// schema drift but must not hand the Tracer a structurally impossible
// address); an invalid value is dropped to empty and logged rather than
// failing the whole transaction.
func (p *HTTPProvider) normalizeAddress(spec chain.Spec, address string) string {
	if address == "" {
		return ""
	}
	if err := spec.ValidateAddress(address); err != nil {
		p.log.Warn("dropping structurally invalid address from provider response",
			zap.String("chain", spec.ID), zap.String("address", address), zap.Error(err))
		return ""
	}
	return address
}

func (p *HTTPProvider) GetAddressMeta(ctx context.Context, chainID, address string) (AddressMeta, error) {
	spec, err := p.chains.Get(chainID)
	if err != nil {
		return AddressMeta{}, err
	}

	path := fmt.Sprintf("%s/%s/dashboards/address/%s", p.baseURL, spec.APIPath, address)
	body, err := p.fetch(ctx, "addr:"+chainID+":"+address, path)
	if err != nil {
		return AddressMeta{}, err
	}

	var resp dashboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AddressMeta{}, newError(ErrDecode, p.name, "malformed address payload", err)
	}

	meta := AddressMeta{
		Address: address, Chain: chainID,
		Balance: resp.Balance, TxCount: resp.TxCount,
		FirstSeen: resp.FirstSeen, LastSeen: resp.LastSeen, Label: resp.Label,
		FundingTx: resp.FundingTx,
	}
	for _, t := range resp.Tags {
		meta.Tags = append(meta.Tags, risk.Tag(t))
	}
	return meta, nil
}

// fetch applies single-flight coalescing (spec.md §5 "Single-flight"),
// then the retry-wrapped, rate-limited, circuit-broken HTTP call.
func (p *HTTPProvider) fetch(ctx context.Context, key, path string) ([]byte, error) {
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		return provider_do(ctx, p, path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func provider_do(ctx context.Context, p *HTTPProvider, path string) ([]byte, error) {
	return Do(ctx, p.retry, func(ctx context.Context) ([]byte, attemptResult, error) {
		if !p.breaker.Allow() {
			return nil, attemptResult{}, newError(ErrProviderDown, p.name, "circuit open", nil)
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, attemptResult{}, err
		}

		p.requestCount.Add(1)
		body, status, retryAfter, err := p.doRequest(ctx, path)

		select {
		case <-ctx.Done():
			p.breaker.RecordAbandoned()
			return nil, attemptResult{}, ctx.Err()
		default:
		}

		switch {
		case err != nil:
			p.breaker.RecordFailure()
			return nil, attemptResult{retryable: true}, newError(ErrProviderDown, p.name, "transport error", err)
		case status == http.StatusNotFound:
			// Definitive negative: does not count toward the breaker.
			return nil, attemptResult{}, newError(ErrTxNotFound, p.name, "not found", nil)
		case status == http.StatusTooManyRequests:
			p.breaker.RecordFailure()
			return nil, attemptResult{retryable: true, retryAfter: retryAfter}, newError(ErrRateLimited, p.name, "rate limited", nil)
		case status >= 500:
			p.breaker.RecordFailure()
			return nil, attemptResult{retryable: true}, newError(ErrProviderDown, p.name, fmt.Sprintf("upstream %d", status), nil)
		case status >= 400:
			p.breaker.RecordFailure()
			return nil, attemptResult{}, newError(ErrDecode, p.name, fmt.Sprintf("upstream %d", status), nil)
		}

		p.breaker.RecordSuccess()
		return body, attemptResult{}, nil
	})
}

func (p *HTTPProvider) doRequest(ctx context.Context, path string) (body []byte, status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, convErr := strconv.Atoi(ra); convErr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
	}

	return body, resp.StatusCode, retryAfter, nil
}

func parseFloat(s string, decimals int) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if decimals <= 0 {
		return v
	}
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return v / scale
}
