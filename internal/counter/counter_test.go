package counter

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3"
	"counter-chain/internal/web3/mocks"
)

func TestDecodeIsLittleEndian(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	var want uint64
	for i := 7; i >= 0; i-- {
		want = want*256 + uint64(data[i])
	}

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, uint64(0x0807060504030201), got)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 256, 1 << 32, math.MaxUint64 - 1, math.MaxUint64} {
		encoded := Encode(v)
		require.Len(t, encoded, ValueSize)
		got, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	got, err := Decode([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff})
	require.NoError(t, err)
	require.EqualValues(t, 1, got)
}

func TestDecodeShortInput(t *testing.T) {
	for _, data := range [][]byte{nil, {}, {1, 2, 3, 4, 5, 6, 7}} {
		got, err := Decode(data)
		require.Error(t, err)
		require.Zero(t, got)
		require.Equal(t, CodeDecode, xerrors.CodeOf(err))
	}
}

func TestReadCounter(t *testing.T) {
	ctrl := gomock.NewController(t)
	network := mocks.NewMockNetwork(ctrl)
	addr := solana.NewWallet().PublicKey()
	ctx := context.Background()

	network.EXPECT().FetchAccountBytes(ctx, addr).Return([]byte{1, 0, 0, 0, 0, 0, 0, 0}, nil)
	value, err := ReadCounter(ctx, network, addr)
	require.NoError(t, err)
	require.EqualValues(t, 1, value)

	network.EXPECT().FetchAccountBytes(ctx, addr).Return([]byte{1, 0}, nil)
	_, err = ReadCounter(ctx, network, addr)
	require.Equal(t, CodeDecode, xerrors.CodeOf(err))
	require.Contains(t, err.Error(), addr.String())
	require.Contains(t, err.Error(), "holds 2 bytes, need 8")
	decodeErr, ok := xerrors.From(err)
	require.True(t, ok)
	require.Equal(t, map[string]string{"address": addr.String()}, decodeErr.Metadata())

	notFound := xerrors.New(web3.CodeAccountNotFound, "")
	network.EXPECT().FetchAccountBytes(ctx, addr).Return(nil, notFound)
	_, err = ReadCounter(ctx, network, addr)
	require.True(t, errors.Is(err, web3.ErrAccountNotFound))
}

func TestBuildInstruction(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	target := solana.NewWallet().PublicKey()

	op := BuildInstruction(program, target, OpIncrement)
	require.Equal(t, web3.OperationInvokeInstruction, op.Kind)
	require.Equal(t, program, op.Instruction.ProgramID())

	data, err := op.Instruction.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, data)

	accounts := op.Instruction.Accounts()
	require.Len(t, accounts, 1)
	require.Equal(t, target, accounts[0].PublicKey)
	require.True(t, accounts[0].IsWritable)
	require.False(t, accounts[0].IsSigner)
	require.Empty(t, op.RequiredSigners())
}

func TestBuildCreateOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	network := mocks.NewMockNetwork(ctrl)
	ctx := context.Background()

	payer := solana.NewWallet().PublicKey()
	account := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	network.EXPECT().MinimumExemptBalance(ctx, AccountSpace).Return(uint64(946560), nil)

	op, err := BuildCreateOperation(ctx, network, payer, account, program, AccountSpace)
	require.NoError(t, err)
	require.Equal(t, web3.OperationCreateAccount, op.Kind)
	require.Equal(t, solana.SystemProgramID, op.Instruction.ProgramID())
	require.Equal(t, []solana.PublicKey{payer, account}, op.RequiredSigners())

	data, err := op.Instruction.Data()
	require.NoError(t, err)
	decoded, err := system.DecodeInstruction(op.Instruction.Accounts(), data)
	require.NoError(t, err)
	create, ok := decoded.Impl.(*system.CreateAccount)
	require.True(t, ok)
	require.EqualValues(t, 946560, *create.Lamports)
	require.EqualValues(t, AccountSpace, *create.Space)
	require.Equal(t, program, *create.Owner)
}

func TestBuildCreateOperationPropagatesNetworkError(t *testing.T) {
	ctrl := gomock.NewController(t)
	network := mocks.NewMockNetwork(ctrl)
	failure := xerrors.New(web3.CodeNetwork, "connection reset")
	network.EXPECT().MinimumExemptBalance(gomock.Any(), gomock.Any()).Return(uint64(0), failure)

	_, err := BuildCreateOperation(context.Background(), network,
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), AccountSpace)
	require.ErrorIs(t, err, failure)
}
