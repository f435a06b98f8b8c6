package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
	err  *Error
	rec  TxRecord
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) GetTransaction(ctx context.Context, chainID, txID string) (TxRecord, error) {
	if s.err != nil {
		return TxRecord{}, s.err
	}
	return s.rec, nil
}
func (s *stubProvider) GetAddressMeta(ctx context.Context, chainID, address string) (AddressMeta, error) {
	if s.err != nil {
		return AddressMeta{}, s.err
	}
	return AddressMeta{Address: address}, nil
}
func (s *stubProvider) Health(ctx context.Context) Health { return Health{} }

func TestRegistry_FallsBackOnProviderDown(t *testing.T) {
	r := NewRegistry()
	r.Register("ethereum", &stubProvider{name: "primary", err: &Error{Kind: ErrProviderDown}})
	r.Register("ethereum", &stubProvider{name: "backup", rec: TxRecord{ID: "tx1"}})

	rec, err := r.GetTransaction(context.Background(), "ethereum", "tx1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", rec.ID)
}

func TestRegistry_DoesNotFallBackOnNotFound(t *testing.T) {
	r := NewRegistry()
	r.Register("ethereum", &stubProvider{name: "primary", err: &Error{Kind: ErrTxNotFound}})
	r.Register("ethereum", &stubProvider{name: "backup", rec: TxRecord{ID: "tx1"}})

	_, err := r.GetTransaction(context.Background(), "ethereum", "missing")
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrTxNotFound, perr.Kind)
}

func TestRegistry_NoProviderConfigured(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetTransaction(context.Background(), "ethereum", "tx1")
	require.Error(t, err)
	var noProv *ErrNoProvider
	assert.ErrorAs(t, err, &noProv)
}

func TestRegistry_HealthCoversAllProviders(t *testing.T) {
	r := NewRegistry()
	r.Register("ethereum", &stubProvider{name: "primary"})
	r.Register("bitcoin", &stubProvider{name: "btc-primary"})

	h := r.Health(context.Background())
	assert.Contains(t, h, "primary")
	assert.Contains(t, h, "btc-primary")
}
