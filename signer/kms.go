package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/init4tech/zenith-builder/signing"
)

// KMSAPI is the subset of the AWS KMS client RemoteKMS depends on, narrowed
// so tests can substitute a fake.
type KMSAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// RemoteKMS signs over an asymmetric ECC_SECG_P256K1 key held in AWS KMS.
// KMS returns a plain ASN.1 DER (r, s) pair with no recovery id, so
// SignHash recovers the Ethereum y-parity itself by trial against the
// key's own known address.
type RemoteKMS struct {
	client  KMSAPI
	keyID   string
	chainID uint64
	addr    common.Address
}

// NewRemoteKMS resolves the KMS key's public key up front, so Address is
// available without a round trip on every call.
func NewRemoteKMS(ctx context.Context, client KMSAPI, keyID string, chainID uint64) (*RemoteKMS, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, fmt.Errorf("fetch KMS public key: %w", err)
	}
	pubIface, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse KMS public key: %w", err)
	}
	pub, ok := pubIface.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("KMS key %q is not an ECDSA public key", keyID)
	}
	return &RemoteKMS{
		client:  client,
		keyID:   keyID,
		chainID: chainID,
		addr:    ethcrypto.PubkeyToAddress(*pub),
	}, nil
}

// Address returns the Ethereum address derived from the KMS key's public key.
func (s *RemoteKMS) Address() common.Address {
	return s.addr
}

// ChainID returns the configured chain ID.
func (s *RemoteKMS) ChainID() (uint64, bool) {
	return s.chainID, true
}

// SignHash requests an ECDSA_SHA_256 signature over hash from KMS, decodes
// the DER (r, s), normalizes s to the lower half of the curve order, and
// recovers the matching recovery id by trial: whichever of the two
// candidates recovers to this key's own address is correct.
func (s *RemoteKMS) SignHash(hash common.Hash) (signing.Signature, error) {
	out, err := s.client.Sign(context.Background(), &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          hash.Bytes(),
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return signing.Signature{}, fmt.Errorf("KMS sign: %w", err)
	}
	r, sVal, err := decodeDERSignature(out.Signature)
	if err != nil {
		return signing.Signature{}, fmt.Errorf("decode KMS signature: %w", err)
	}
	sVal = normalizeS(sVal)

	for recID := byte(0); recID < 2; recID++ {
		raw := make([]byte, 65)
		r.FillBytes(raw[0:32])
		sVal.FillBytes(raw[32:64])
		raw[64] = recID
		pub, err := ethcrypto.SigToPub(hash.Bytes(), raw)
		if err != nil {
			continue
		}
		if ethcrypto.PubkeyToAddress(*pub) == s.addr {
			return signing.Signature{R: r, S: sVal, V: recID + 27}, nil
		}
	}
	return signing.Signature{}, errors.New("could not recover a matching y-parity from the KMS signature")
}

type derSignature struct {
	R, S *big.Int
}

func decodeDERSignature(der []byte) (r, s *big.Int, err error) {
	var sig derSignature
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, nil, err
	}
	return sig.R, sig.S, nil
}

var secp256k1HalfOrder = new(big.Int).Rsh(ethcrypto.S256().Params().N, 1)

// normalizeS enforces the low-s convention secp256k1 signature verifiers
// require; KMS does not guarantee it.
func normalizeS(s *big.Int) *big.Int {
	if s.Cmp(secp256k1HalfOrder) > 0 {
		return new(big.Int).Sub(ethcrypto.S256().Params().N, s)
	}
	return s
}
