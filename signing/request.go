// Package signing implements the sign-request/response contract (C2): the
// domain-separated signing hash a sequencer attests to, and recovery of the
// signer address from a response.
package signing

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DomainBinding is prepended to every signing hash preimage, scoping
// signatures to this protocol version. It must never change shape without
// also changing the wire format of every deployed signer.
const DomainBinding = "init4.sequencer.v0"

// Request is the immutable record a sequencer signature attests to.
// Contents is the block content hash, codec.Block.Hash().
type Request struct {
	HostChainID     uint64         `json:"hostChainId"`
	RUChainID       uint64         `json:"ruChainId"`
	HostBlockNumber uint64         `json:"hostBlockNumber"`
	GasLimit        uint64         `json:"gasLimit"`
	RewardAddress   common.Address `json:"ruRewardAddress"`
	Contents        common.Hash    `json:"contents"`
}

// SigningHash computes keccak256(DOMAIN_BINDING || host_chain_id:be32 ||
// ru_chain_id:be32 || host_block_number:be32 || gas_limit:be32 ||
// reward_address:20 || contents:32). Field order is normative; every
// integer is fixed 32-byte big-endian. Total preimage length is 198 bytes
// (18 + 4*32 + 20 + 32).
func (r Request) SigningHash() common.Hash {
	preimage := make([]byte, 0, len(DomainBinding)+32*4+20+32)
	preimage = append(preimage, DomainBinding...)
	preimage = appendUint64BE32(preimage, r.HostChainID)
	preimage = appendUint64BE32(preimage, r.RUChainID)
	preimage = appendUint64BE32(preimage, r.HostBlockNumber)
	preimage = appendUint64BE32(preimage, r.GasLimit)
	preimage = append(preimage, r.RewardAddress.Bytes()...)
	preimage = append(preimage, r.Contents.Bytes()...)
	return crypto.Keccak256Hash(preimage)
}

func appendUint64BE32(dst []byte, v uint64) []byte {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], v)
	return append(dst, buf[:]...)
}

// Response pairs a Request with the recoverable signature over its signing
// hash, as returned by either a local signer or the remote signing service.
type Response struct {
	Req Request   `json:"req"`
	Sig Signature `json:"sig"`
}
