package signer

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/init4tech/zenith-builder/signing"
)

// LocalKey is the in-process private-key signer variant.
type LocalKey struct {
	priv    *ecdsa.PrivateKey
	addr    common.Address
	chainID uint64
}

// NewLocalKey wraps a raw ECDSA private key as a Signer.
func NewLocalKey(priv *ecdsa.PrivateKey, chainID uint64) *LocalKey {
	return &LocalKey{
		priv:    priv,
		addr:    crypto.PubkeyToAddress(priv.PublicKey),
		chainID: chainID,
	}
}

// Address returns the address derived from the private key's public key.
func (s *LocalKey) Address() common.Address {
	return s.addr
}

// ChainID returns the configured chain ID.
func (s *LocalKey) ChainID() (uint64, bool) {
	return s.chainID, true
}

// SignHash signs hash directly, with no message prefix.
func (s *LocalKey) SignHash(hash common.Hash) (signing.Signature, error) {
	return signing.SignHash(hash, s.priv)
}
