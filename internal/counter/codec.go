package counter

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"

	xerrors "counter-chain/internal/errors"
)

// CodeDecode marks account bytes that do not hold a counter.
const CodeDecode xerrors.Code = "DECODE"

// ValueSize is the width of the encoded counter.
const ValueSize = 8

func init() {
	xerrors.Register(CodeDecode, xerrors.Attributes{
		Message:  "account data is not a counter",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Decode reads the first ValueSize bytes as a little-endian u64. Trailing
// bytes are ignored.
func Decode(data []byte) (uint64, error) {
	if len(data) < ValueSize {
		return 0, xerrors.New(CodeDecode, fmt.Sprintf("account holds %d bytes, need %d", len(data), ValueSize))
	}
	var value uint64
	if err := borsh.Deserialize(&value, data[:ValueSize]); err != nil {
		return 0, xerrors.Wrap(CodeDecode, err, "")
	}
	return value, nil
}

// Encode returns the account representation of value.
func Encode(value uint64) []byte {
	out, err := borsh.Serialize(value)
	if err != nil {
		// borsh cannot fail on a fixed-width integer.
		panic(err)
	}
	return out
}

// AccountReader is the slice of web3.Network the reader needs.
type AccountReader interface {
	FetchAccountBytes(ctx context.Context, address solana.PublicKey) ([]byte, error)
}

// ReadCounter fetches address and decodes its counter. A missing account
// surfaces the reader's not-found error unchanged.
func ReadCounter(ctx context.Context, reader AccountReader, address solana.PublicKey) (uint64, error) {
	data, err := reader.FetchAccountBytes(ctx, address)
	if err != nil {
		return 0, err
	}
	value, err := Decode(data)
	if err != nil {
		return 0, xerrors.Wrap(CodeDecode, err, fmt.Sprintf("read counter %s", address),
			xerrors.WithMetadata("address", address.String()))
	}
	return value, nil
}
