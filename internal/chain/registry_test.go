package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	eth, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, FamilyAccount, eth.Family)
	assert.Equal(t, 18, eth.Decimals)

	btc, err := r.Get("bitcoin")
	require.NoError(t, err)
	assert.Equal(t, FamilyUTXO, btc.Family)
	assert.Equal(t, 8, btc.Decimals)
}

func TestRegistry_GetUnsupported(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("dogecoin")
	require.Error(t, err)

	var unsupported *ErrUnsupported
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "dogecoin", unsupported.ChainID)
	assert.NotEmpty(t, unsupported.Supported)
}

func TestRegistry_ListIsStableAndSorted(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].ID < list[i].ID)
	}
}

func TestSpec_ValidateAddress(t *testing.T) {
	r := NewRegistry()

	eth, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.NoError(t, eth.ValidateAddress("0x742d35cc6634c0532925a3b844bc454e4438f44e"))
	assert.Error(t, eth.ValidateAddress("not-an-address"))

	btc, err := r.Get("bitcoin")
	require.NoError(t, err)
	assert.NoError(t, btc.ValidateAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.Error(t, btc.ValidateAddress("not-an-address"))
}
