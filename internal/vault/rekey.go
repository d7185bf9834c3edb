package vault

import (
	"fmt"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/store"
)

// ReencryptAll returns copies of records with every ciphertext moved from
// oldKey to newKey under mode. If any record fails, no copies are returned
// and the inputs are untouched.
func ReencryptAll(mode crypto.Mode, records []*store.Record, oldKey, newKey []byte) ([]*store.Record, error) {
	env, err := crypto.NewEnvelope(mode, oldKey)
	if err != nil {
		return nil, fmt.Errorf("old key: %w", err)
	}
	if !env.VerifyKey(newKey) {
		return nil, fmt.Errorf("new key: %w", crypto.ErrInvalidKeySize)
	}

	out := make([]*store.Record, 0, len(records))
	for _, r := range records {
		ct, err := env.Reencrypt(r.Ciphertext, oldKey, newKey)
		if err != nil {
			return nil, fmt.Errorf("reencrypt record %s: %w", r.ID, err)
		}
		moved := *r
		moved.Ciphertext = ct
		out = append(out, &moved)
	}
	return out, nil
}
