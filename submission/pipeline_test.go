package submission

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"

	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/signer"
	"github.com/init4tech/zenith-builder/signing"
)

// fakeRPCError satisfies go-ethereum's rpc.Error interface (Error() string,
// ErrorCode() int), so web3rpc.ParseError recognizes it as a structured
// JSON-RPC error response rather than a bare transport failure.
type fakeRPCError struct {
	code int
	msg  string
}

func (e *fakeRPCError) Error() string  { return e.msg }
func (e *fakeRPCError) ErrorCode() int { return e.code }

type mockHost struct {
	blockNumber uint64
	callErr     error
	sent        []*gethtypes.Transaction
	baseFee     *big.Int
	blobBaseFee *big.Int
	nonce       uint64
}

func newMockHost() *mockHost {
	return &mockHost{blockNumber: 100, baseFee: big.NewInt(1_000_000_000), blobBaseFee: big.NewInt(1)}
}

func (m *mockHost) BlockNumber(ctx context.Context) (uint64, error) { return m.blockNumber, nil }

func (m *mockHost) PendingCallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	if m.callErr != nil {
		return nil, m.callErr
	}
	return []byte{}, nil
}

func (m *mockHost) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockHost) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.nonce, nil
}

func (m *mockHost) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{BaseFee: m.baseFee}, nil
}

func (m *mockHost) BlobBaseFee(ctx context.Context) (*big.Int, error) {
	return m.blobBaseFee, nil
}

func blockWithOneTx(c *qt.C, ruChainID int64) *codec.Block {
	priv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	inner := &gethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(ruChainID),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		Gas:       21000,
		Value:     big.NewInt(0),
	}
	signed, err := gethtypes.SignNewTx(priv, gethtypes.LatestSignerForChainID(big.NewInt(ruChainID)), inner)
	c.Assert(err, qt.IsNil)
	tx, err := codec.NewTransaction(signed)
	c.Assert(err, qt.IsNil)
	block := codec.NewBlock()
	block.Append(tx)
	return block
}

func testPipeline(c *qt.C, host HostClient) (*Pipeline, *signer.LocalKey, *signer.LocalKey) {
	seqPriv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	seq := signer.NewLocalKey(seqPriv, 1)

	builderPriv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	builder := signer.NewLocalKey(builderPriv, 1)

	cfg := Config{
		HostChainID:   1,
		RUChainID:     2,
		ZenithAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		RewardAddress: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		GasLimit:      30_000_000,
		AuthorizedSeq: seq.Address(),
	}
	return New(cfg, host, seq, nil, builder), seq, builder
}

// TestProcessBatchDropsOnSimulationError is scenario I: a structured
// eth_call error must prevent any eth_sendRawTransaction and not halt
// the pipeline.
func TestProcessBatchDropsOnSimulationError(t *testing.T) {
	c := qt.New(t)

	host := newMockHost()
	host.callErr = &fakeRPCError{code: 3, msg: "execution reverted"}

	pipeline, _, _ := testPipeline(c, host)
	block := blockWithOneTx(c, 2)

	pipeline.ProcessBatch(t.Context(), block)

	c.Assert(host.sent, qt.HasLen, 0)
}

// TestProcessBatchHappyPath is scenario J: a fully successful run dispatches
// exactly once, with hostBlockNumber = head+1 and a blob sidecar whose
// payload keccak equals the batch content hash.
func TestProcessBatchHappyPath(t *testing.T) {
	c := qt.New(t)

	host := newMockHost()
	pipeline, _, builder := testPipeline(c, host)
	block := blockWithOneTx(c, 2)

	contentHash, err := block.Hash()
	c.Assert(err, qt.IsNil)

	pipeline.ProcessBatch(t.Context(), block)

	c.Assert(host.sent, qt.HasLen, 1)
	tx := host.sent[0]

	sender, err := gethtypes.Sender(gethtypes.NewCancunSigner(big.NewInt(1)), tx)
	c.Assert(err, qt.IsNil)
	c.Assert(sender, qt.Equals, builder.Address())

	sidecar := tx.BlobTxSidecar()
	c.Assert(sidecar, qt.Not(qt.IsNil))
	payload := UnpackBlob(&sidecar.Blobs[0])
	c.Assert(crypto.Keccak256Hash(payload), qt.Equals, contentHash)

	req := signing.Request{
		HostChainID:     1,
		RUChainID:       2,
		HostBlockNumber: host.blockNumber + 1,
		GasLimit:        30_000_000,
		RewardAddress:   pipeline.cfg.RewardAddress,
		Contents:        contentHash,
	}
	expectedInput, err := EncodeSubmitBlock(req, signing.Signature{R: big.NewInt(0), S: big.NewInt(0), V: 27})
	c.Assert(err, qt.IsNil)
	// Only the selector and header encode deterministically without the
	// signature; compare the fixed-length prefix (selector + header tuple).
	const selectorAndHeaderLen = 4 + 5*32
	c.Assert(tx.Data()[:selectorAndHeaderLen], qt.DeepEquals, expectedInput[:selectorAndHeaderLen])
}
