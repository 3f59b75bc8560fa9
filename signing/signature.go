package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned both when recovery itself fails and when
// recovery succeeds but the recovered address is not the authorized
// sequencer.
var ErrBadSignature = errors.New("bad signature")

// Signature is a 65-byte recoverable secp256k1 signature (r, s, v') where
// v' = y_parity + 27, the Ethereum wire convention expected by the Zenith
// ABI. It carries no message prefix: it signs a raw 32-byte hash directly.
type Signature struct {
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V uint8    `json:"v"`
}

// recoveryID converts the wire v (27/28) to the 0/1 recovery id
// go-ethereum's crypto package expects.
func (s Signature) recoveryID() (byte, error) {
	if s.V != 27 && s.V != 28 {
		return 0, fmt.Errorf("invalid recovery id %d, expected 27 or 28", s.V)
	}
	return s.V - 27, nil
}

// bytes65 renders the signature as the 65-byte (r || s || recoveryID) form
// go-ethereum's SigToPub expects.
func (s Signature) bytes65() ([]byte, error) {
	recID, err := s.recoveryID()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 65)
	s.R.FillBytes(out[0:32])
	s.S.FillBytes(out[32:64])
	out[64] = recID
	return out, nil
}

// SignHash produces a Signature over hash using a raw ECDSA private key,
// with no message prefix — the LocalKey signer variant's primitive.
func SignHash(hash common.Hash, priv *ecdsa.PrivateKey) (Signature, error) {
	sig, err := crypto.Sign(hash.Bytes(), priv)
	if err != nil {
		return Signature{}, fmt.Errorf("sign hash: %w", err)
	}
	return Signature{
		R: new(big.Int).SetBytes(sig[0:32]),
		S: new(big.Int).SetBytes(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

// Recover recovers the signer address for sig over hash and compares it to
// expected. It wraps ErrBadSignature both when recovery errors and when
// recovery succeeds but the address does not match.
func Recover(hash common.Hash, sig Signature, expected common.Address) error {
	raw, err := sig.bytes65()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return fmt.Errorf("%w: recover: %v", ErrBadSignature, err)
	}
	addr := crypto.PubkeyToAddress(*pub)
	if addr != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrBadSignature, addr, expected)
	}
	return nil
}

// RecoverAddress recovers the signer address for sig over hash without
// comparing it to an expected value.
func RecoverAddress(hash common.Hash, sig Signature) (common.Address, error) {
	raw, err := sig.bytes65()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
