package trace

import (
	"encoding/json"

	"github.com/yourusername/kyt/internal/provider"
)

// encodeTx/decodeTx and encodeMeta/decodeMeta serialize provider payloads
// for the cache tier, which only deals in opaque bytes (internal/cache's
// Store contract). JSON keeps the cached shape human-inspectable, which
// matters for a compliance tool whose cache may be audited.

func encodeTx(rec provider.TxRecord) []byte {
	b, _ := json.Marshal(rec)
	return b
}

func decodeTx(raw []byte) (provider.TxRecord, error) {
	var rec provider.TxRecord
	err := json.Unmarshal(raw, &rec)
	return rec, err
}

func encodeMeta(meta provider.AddressMeta) []byte {
	b, _ := json.Marshal(meta)
	return b
}

func decodeMeta(raw []byte) (provider.AddressMeta, error) {
	var meta provider.AddressMeta
	err := json.Unmarshal(raw, &meta)
	return meta, err
}
