package submission

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/init4tech/zenith-builder/signing"
)

// Header is the ABI tuple argument submitBlock expects, derived from a
// sign request and the sealed block it commits to.
type Header struct {
	RollupChainID   *big.Int
	HostBlockNumber *big.Int
	GasLimit        *big.Int
	RewardAddress   common.Address
	BlockDataHash   common.Hash
}

// headerFromRequest builds a Header from the request submitted for
// signature; contents is already B.hash, as set by ProcessBatch.
func headerFromRequest(req signing.Request) Header {
	return Header{
		RollupChainID:   new(big.Int).SetUint64(req.RUChainID),
		HostBlockNumber: new(big.Int).SetUint64(req.HostBlockNumber),
		GasLimit:        new(big.Int).SetUint64(req.GasLimit),
		RewardAddress:   req.RewardAddress,
		BlockDataHash:   req.Contents,
	}
}

var submitBlockArguments = mustSubmitBlockArguments()

// submitBlockSelector is the 4-byte method selector for
// submitBlock((uint256,uint256,uint256,address,bytes32),uint8,bytes32,bytes32,bytes).
var submitBlockSelector = crypto.Keccak256(
	[]byte("submitBlock((uint256,uint256,uint256,address,bytes32),uint8,bytes32,bytes32,bytes)"),
)[:4]

func mustSubmitBlockArguments() abi.Arguments {
	headerType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "rollupChainId", Type: "uint256"},
		{Name: "hostBlockNumber", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "rewardAddress", Type: "address"},
		{Name: "blockDataHash", Type: "bytes32"},
	})
	if err != nil {
		panic(fmt.Sprintf("build submitBlock header tuple type: %v", err))
	}
	uint8Type, err := abi.NewType("uint8", "", nil)
	if err != nil {
		panic(err)
	}
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Type: headerType},
		{Type: uint8Type},
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: bytesType},
	}
}

// abiHeader mirrors Header and is the concrete Go type go-ethereum's abi
// package packs against the tuple type above. abi.Pack matches each tuple
// component to the struct field named by its camel-cased component name
// (rollupChainId -> RollupChainId), which is why these field names follow
// the ABI spelling rather than Header's.
type abiHeader struct {
	RollupChainId   *big.Int
	HostBlockNumber *big.Int
	GasLimit        *big.Int
	RewardAddress   common.Address
	BlockDataHash   [32]byte
}

// EncodeSubmitBlock ABI-encodes a call to submitBlock(header, v, r, s,
// emptyBytes). blockData is always empty: the block data travels in the
// blob sidecar, and the header's blockDataHash carries its commitment.
func EncodeSubmitBlock(req signing.Request, sig signing.Signature) ([]byte, error) {
	h := headerFromRequest(req)
	packed, err := submitBlockArguments.Pack(
		abiHeader{
			RollupChainId:   h.RollupChainID,
			HostBlockNumber: h.HostBlockNumber,
			GasLimit:        h.GasLimit,
			RewardAddress:   h.RewardAddress,
			BlockDataHash:   h.BlockDataHash,
		},
		sig.V,
		to32(sig.R),
		to32(sig.S),
		[]byte{},
	)
	if err != nil {
		return nil, fmt.Errorf("pack submitBlock arguments: %w", err)
	}
	return append(append([]byte{}, submitBlockSelector...), packed...), nil
}

func to32(v *big.Int) [32]byte {
	var out [32]byte
	v.FillBytes(out[:])
	return out
}
