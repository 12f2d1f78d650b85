package web3

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	xerrors "counter-chain/internal/errors"
)

const explorerBaseURL = "https://explorer.solana.com/tx/"

// ParseAddress decodes a base58 account or program address.
func ParseAddress(s string) (solana.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, xerrors.New(xerrors.CodeInvalidArgument, "address is empty")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("address %q is not base58", s))
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("address %q decodes to %d bytes, want %d", s, len(raw), solana.PublicKeyLength))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// ExplorerURL links a transaction signature on the public explorer. An empty
// cluster or mainnet-beta omits the cluster query.
func ExplorerURL(sig solana.Signature, cluster string) string {
	link := explorerBaseURL + sig.String()
	cluster = strings.TrimSpace(cluster)
	if cluster == "" || cluster == "mainnet-beta" {
		return link
	}
	return link + "?cluster=" + url.QueryEscape(cluster)
}
