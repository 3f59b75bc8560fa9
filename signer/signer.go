// Package signer implements the dual-variant signer port (C5): a local raw
// private key and a remote AWS KMS key are exposed through one fungible
// interface. Consumers never branch on which variant they hold.
package signer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/init4tech/zenith-builder/signing"
)

// Signer is the uniform signing surface shared by the LocalKey and
// RemoteKMS variants. It serves two distinct roles in the builder: signing
// a sequencer's block header commitment, and signing the host transaction
// that dispatches a batch — both are just "sign this 32-byte hash".
type Signer interface {
	// Address returns the signer's Ethereum address.
	Address() common.Address
	// ChainID returns the chain the signer is scoped to, if any.
	ChainID() (uint64, bool)
	// SignHash signs a raw 32-byte hash with no message prefix.
	SignHash(hash common.Hash) (signing.Signature, error)
}

// Load selects a Signer variant from an opaque identifier, per the loading
// policy: first attempt to parse identifier as a hex-encoded ECDSA private
// key and select LocalKey; on failure, treat it as a KMS key id and select
// RemoteKMS. kmsClient may be nil when only local keys are expected to be
// configured; an identifier that is neither a valid hex key nor usable
// against kmsClient is a ConfigError, fatal at startup.
func Load(ctx context.Context, identifier string, chainID uint64, kmsClient KMSAPI) (Signer, error) {
	if identifier == "" {
		return nil, fmt.Errorf("empty signer identifier")
	}
	hexKey := strings.TrimPrefix(identifier, "0x")
	if priv, err := crypto.HexToECDSA(hexKey); err == nil {
		return NewLocalKey(priv, chainID), nil
	}
	if kmsClient == nil {
		return nil, fmt.Errorf("identifier is not a hex private key and no KMS client is configured")
	}
	return NewRemoteKMS(ctx, kmsClient, identifier, chainID)
}
