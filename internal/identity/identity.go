// Package identity generates the ephemeral signing identities a run needs.
// Identities live only in memory for the duration of one run; nothing here
// persists key material.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"github.com/gagliardetto/solana-go"

	xerrors "counter-chain/internal/errors"
)

// CodeIdentityGeneration marks an entropy or key derivation failure.
const CodeIdentityGeneration xerrors.Code = "IDENTITY_GENERATION"

func init() {
	xerrors.Register(CodeIdentityGeneration, xerrors.Attributes{
		Message:  "identity generation failed",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Identity is an ed25519 key pair used to sign transactions.
type Identity struct {
	key     solana.PrivateKey
	address solana.PublicKey
}

// Address returns the public half of the identity.
func (id *Identity) Address() solana.PublicKey {
	return id.address
}

// PrivateKey exposes the signing key to the transaction signer.
func (id *Identity) PrivateKey() *solana.PrivateKey {
	if id == nil || len(id.key) == 0 {
		return nil
	}
	return &id.key
}

// Destroy zeroes the private key. The identity cannot sign afterwards.
func (id *Identity) Destroy() {
	if id == nil {
		return
	}
	for i := range id.key {
		id.key[i] = 0
	}
	id.key = nil
}

// Generator produces fresh identities.
type Generator interface {
	Generate() (*Identity, error)
}

// RandomGenerator draws key seeds from an entropy source.
type RandomGenerator struct {
	entropy io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *RandomGenerator {
	return &RandomGenerator{entropy: rand.Reader}
}

// NewGeneratorFromReader returns a generator reading seeds from r.
func NewGeneratorFromReader(r io.Reader) *RandomGenerator {
	return &RandomGenerator{entropy: r}
}

// Generate returns a new independent key pair.
func (g *RandomGenerator) Generate() (*Identity, error) {
	entropy := g.entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(entropy)
	if err != nil {
		return nil, xerrors.Wrap(CodeIdentityGeneration, err, "")
	}
	return &Identity{
		key:     solana.PrivateKey(priv),
		address: solana.PublicKeyFromBytes(pub),
	}, nil
}
