// Package submission implements the submission pipeline (C6): the per-batch
// state machine that takes a sealed block from the assembler, obtains a
// sequencer signature, builds a blob-carrying host transaction, simulates
// it, and dispatches it, isolating every failure to the batch that caused
// it.
package submission

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/log"
	"github.com/init4tech/zenith-builder/signer"
	"github.com/init4tech/zenith-builder/signing"
	"github.com/init4tech/zenith-builder/web3rpc"
)

// ErrDropped marks a batch that was abandoned after a state-machine
// transition failure; it is never propagated past ProcessBatch, only
// logged, per the submitter-isolation contract (property 11).
var ErrDropped = errors.New("batch dropped")

const (
	// DefaultPriorityFeeWei is the fixed max_priority_fee_per_gas policy;
	// base fee and blob gas are left to the provider's fee fillers.
	DefaultPriorityFeeWei = 16_000_000_000 // 16 gwei
	// DefaultTxGasLimit is the fixed gas limit on the host dispatch
	// transaction.
	DefaultTxGasLimit = 1_000_000
)

// HostClient is the subset of web3rpc.Client the pipeline depends on.
type HostClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	PendingCallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	BlobBaseFee(ctx context.Context) (*big.Int, error)
}

// Config is the pipeline's per-deployment configuration, populated from
// environment at startup.
type Config struct {
	HostChainID    uint64
	RUChainID      uint64
	ZenithAddress  common.Address
	RewardAddress  common.Address
	GasLimit       uint64
	AuthorizedSeq  common.Address
	PriorityFeeWei int64
	TxGasLimit     uint64
}

// Pipeline drives the RECEIVED -> FETCH_TIP -> BUILD_REQ -> SIGN ->
// BUILD_TX -> SIMULATE -> DISPATCH state machine for each block it
// receives from the assembler.
type Pipeline struct {
	cfg     Config
	host    HostClient
	seq     signer.Signer // nil when a remote signer is configured
	remote  RemoteSigner  // nil when a local sequencer signer is configured
	builder signer.Signer
}

// New constructs a Pipeline. Exactly one of seq or remote must be non-nil:
// the sequencer signs locally, or the pipeline defers to the remote
// signing service — never both.
func New(cfg Config, host HostClient, seq signer.Signer, remote RemoteSigner, builder signer.Signer) *Pipeline {
	if cfg.PriorityFeeWei == 0 {
		cfg.PriorityFeeWei = DefaultPriorityFeeWei
	}
	if cfg.TxGasLimit == 0 {
		cfg.TxGasLimit = DefaultTxGasLimit
	}
	return &Pipeline{cfg: cfg, host: host, seq: seq, remote: remote, builder: builder}
}

// Run consumes sealed blocks from in until the channel is closed,
// processing them serially and in arrival order.
func (p *Pipeline) Run(ctx context.Context, in <-chan *codec.Block) {
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-in:
			if !ok {
				return
			}
			p.ProcessBatch(ctx, block)
		}
	}
}

// ProcessBatch runs one block through the full state machine. It never
// returns an error: every failure is logged and the batch is dropped,
// isolated from any batch before or after it.
func (p *Pipeline) ProcessBatch(ctx context.Context, block *codec.Block) {
	headBlock, err := p.host.BlockNumber(ctx)
	if err != nil {
		log.Warnw("FETCH_TIP failed, dropping batch", "error", err.Error())
		return
	}
	hostBlockNumber := headBlock + 1

	contentHash, err := block.Hash()
	if err != nil {
		log.Warnw("BUILD_REQ failed to compute content hash, dropping batch", "error", err.Error())
		return
	}
	req := signing.Request{
		HostChainID:     p.cfg.HostChainID,
		RUChainID:       p.cfg.RUChainID,
		HostBlockNumber: hostBlockNumber,
		GasLimit:        p.cfg.GasLimit,
		RewardAddress:   p.cfg.RewardAddress,
		Contents:        contentHash,
	}

	sig, err := p.sign(ctx, req)
	if err != nil {
		log.Warnw("SIGN failed, dropping batch", "error", err.Error())
		return
	}

	tx, err := p.buildTx(ctx, block, req, sig)
	if err != nil {
		log.Warnw("BUILD_TX failed, dropping batch", "error", err.Error())
		return
	}

	if err := p.simulate(ctx, tx); err != nil {
		if rpcErr, ok := web3rpc.AsRPCError(err); ok {
			log.Warnw("SIMULATE returned structured error, dropping batch",
				"code", rpcErr.Code, "message", rpcErr.Message, "data", rpcErr.Data.String())
		} else {
			log.Warnw("SIMULATE failed, dropping batch", "error", err.Error())
		}
		return
	}

	if err := p.host.SendTransaction(ctx, tx); err != nil {
		log.Warnw("DISPATCH failed, dropping batch", "error", err.Error())
		return
	}
	log.Infow("dispatched submitBlock", "txHash", tx.Hash().Hex(), "hostBlockNumber", hostBlockNumber, "txCount", block.Len())
}

// sign performs the SIGN transition: locally if a sequencer signer is
// configured, otherwise via the remote signing service. Either way the
// result is verified to recover to the authorized sequencer address.
func (p *Pipeline) sign(ctx context.Context, req signing.Request) (signing.Signature, error) {
	var sig signing.Signature
	if p.seq != nil {
		s, err := p.seq.SignHash(req.SigningHash())
		if err != nil {
			return signing.Signature{}, fmt.Errorf("%w: local sign: %v", ErrSignatureError, err)
		}
		sig = s
	} else {
		resp, err := p.remote.Sign(ctx, req)
		if err != nil {
			return signing.Signature{}, err
		}
		sig = resp.Sig
	}

	if err := signing.Recover(req.SigningHash(), sig, p.cfg.AuthorizedSeq); err != nil {
		return signing.Signature{}, fmt.Errorf("%w: %v", ErrSignatureError, err)
	}
	return sig, nil
}

// buildTx performs the BUILD_TX transition: ABI-encode the submitBlock
// call, pack a blob sidecar from the block's raw encoding, and assemble a
// signed EIP-4844 transaction dispatching from the builder's own address.
func (p *Pipeline) buildTx(ctx context.Context, block *codec.Block, req signing.Request, sig signing.Signature) (*gethtypes.Transaction, error) {
	input, err := EncodeSubmitBlock(req, sig)
	if err != nil {
		return nil, fmt.Errorf("encode submitBlock call: %w", err)
	}

	raw, err := block.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode block for sidecar: %w", err)
	}
	sidecar, err := buildBlobSidecar(raw)
	if err != nil {
		return nil, fmt.Errorf("build blob sidecar: %w", err)
	}

	builderAddr := p.builder.Address()
	nonce, err := p.host.PendingNonceAt(ctx, builderAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch builder nonce: %w", err)
	}
	head, err := p.host.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch host head header: %w", err)
	}
	if head.BaseFee == nil {
		return nil, fmt.Errorf("host head header has no base fee; chain is pre-EIP-1559")
	}
	blobBaseFee, err := p.host.BlobBaseFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blob base fee: %w", err)
	}

	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), big.NewInt(p.cfg.PriorityFeeWei))
	blobFeeCap := new(big.Int).Mul(blobBaseFee, big.NewInt(2))

	blobHashes := sidecar.BlobHashes()
	inner := &gethtypes.BlobTx{
		ChainID:    uint256.MustFromBig(new(big.Int).SetUint64(p.cfg.HostChainID)),
		Nonce:      nonce,
		GasTipCap:  uint256.MustFromBig(big.NewInt(p.cfg.PriorityFeeWei)),
		GasFeeCap:  uint256.MustFromBig(feeCap),
		Gas:        p.cfg.TxGasLimit,
		To:         p.cfg.ZenithAddress,
		Value:      uint256.NewInt(0),
		Data:       input,
		BlobFeeCap: uint256.MustFromBig(blobFeeCap),
		BlobHashes: blobHashes,
		Sidecar:    sidecar,
	}

	chainSigner := gethtypes.NewCancunSigner(new(big.Int).SetUint64(p.cfg.HostChainID))
	hash := chainSigner.Hash(gethtypes.NewTx(inner))
	builderSig, err := p.builder.SignHash(hash)
	if err != nil {
		return nil, fmt.Errorf("sign host transaction: %w", err)
	}
	raw65 := make([]byte, 65)
	builderSig.R.FillBytes(raw65[0:32])
	builderSig.S.FillBytes(raw65[32:64])
	raw65[64] = builderSig.V - 27

	signedTx, err := gethtypes.NewTx(inner).WithSignature(chainSigner, raw65)
	if err != nil {
		return nil, fmt.Errorf("attach signature to host transaction: %w", err)
	}
	return signedTx, nil
}

// simulate performs the SIMULATE transition: an eth_call at the pending
// block tag against the fully-built transaction. A structured JSON-RPC
// error response and a bare transport error are both treated as DROPPED,
// per the spec's undifferentiated simulation-error policy.
func (p *Pipeline) simulate(ctx context.Context, tx *gethtypes.Transaction) error {
	from := p.builder.Address()
	call := ethereum.CallMsg{
		From:       from,
		To:         tx.To(),
		Gas:        tx.Gas(),
		GasFeeCap:  tx.GasFeeCap(),
		GasTipCap:  tx.GasTipCap(),
		Value:      tx.Value(),
		Data:       tx.Data(),
		BlobGasFeeCap: tx.BlobGasFeeCap(),
		BlobHashes: tx.BlobHashes(),
	}
	_, err := p.host.PendingCallContract(ctx, call)
	return err
}
