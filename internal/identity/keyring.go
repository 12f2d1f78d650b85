package identity

import (
	"github.com/gagliardetto/solana-go"
)

// Keyring is the ordered signer set of one transaction. The first identity
// pays the fees.
type Keyring struct {
	ordered []*Identity
	byKey   map[solana.PublicKey]*Identity
}

// NewKeyring indexes ids by address. Nil entries are skipped and duplicates
// keep their first position.
func NewKeyring(ids ...*Identity) *Keyring {
	k := &Keyring{byKey: make(map[solana.PublicKey]*Identity, len(ids))}
	for _, id := range ids {
		if id == nil {
			continue
		}
		if _, ok := k.byKey[id.Address()]; ok {
			continue
		}
		k.byKey[id.Address()] = id
		k.ordered = append(k.ordered, id)
	}
	return k
}

// FeePayer returns the first identity, or nil for an empty keyring.
func (k *Keyring) FeePayer() *Identity {
	if k == nil || len(k.ordered) == 0 {
		return nil
	}
	return k.ordered[0]
}

// Has reports whether address can sign.
func (k *Keyring) Has(address solana.PublicKey) bool {
	if k == nil {
		return false
	}
	_, ok := k.byKey[address]
	return ok
}

// Len returns the number of distinct identities.
func (k *Keyring) Len() int {
	if k == nil {
		return 0
	}
	return len(k.ordered)
}

// PrivateKey satisfies the lookup callback of solana.Transaction.Sign.
func (k *Keyring) PrivateKey(address solana.PublicKey) *solana.PrivateKey {
	if k == nil {
		return nil
	}
	id, ok := k.byKey[address]
	if !ok {
		return nil
	}
	return id.PrivateKey()
}

// Destroy wipes every identity in the keyring.
func (k *Keyring) Destroy() {
	if k == nil {
		return
	}
	for _, id := range k.ordered {
		id.Destroy()
	}
}
