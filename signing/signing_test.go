package signing

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

// TestSigningHashVector is scenario E: a fixed SignRequest with known field
// values must always produce the same 32-byte constant.
func TestSigningHashVector(t *testing.T) {
	c := qt.New(t)

	req := Request{
		HostChainID:     1,
		RUChainID:       2,
		HostBlockNumber: 0,
		GasLimit:        5,
		RewardAddress:   common.HexToAddress(strings.Repeat("06", 20)),
		Contents:        common.HexToHash(strings.Repeat("07", 32)),
	}

	got := req.SigningHash()
	want := common.HexToHash("0x74388c53a86cf15b3e8b11fa5f499dac87819fd00c20cfec4557b7d551b2c445")
	c.Assert(got, qt.Equals, want)
}

func TestSigningHashStability(t *testing.T) {
	c := qt.New(t)
	req := Request{HostChainID: 7, RUChainID: 8, HostBlockNumber: 9, GasLimit: 10}
	c.Assert(req.SigningHash(), qt.Equals, req.SigningHash())
}

func TestSignatureRecoverability(t *testing.T) {
	c := qt.New(t)

	priv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	req := Request{HostChainID: 1, RUChainID: 2, HostBlockNumber: 3, GasLimit: 4}
	hash := req.SigningHash()

	sig, err := SignHash(hash, priv)
	c.Assert(err, qt.IsNil)

	recovered, err := RecoverAddress(hash, sig)
	c.Assert(err, qt.IsNil)
	c.Assert(recovered, qt.Equals, addr)

	c.Assert(Recover(hash, sig, addr), qt.IsNil)
}

func TestRecoverMismatchIsBadSignature(t *testing.T) {
	c := qt.New(t)

	priv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)

	other, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	otherAddr := crypto.PubkeyToAddress(other.PublicKey)

	req := Request{HostChainID: 1, RUChainID: 2}
	hash := req.SigningHash()
	sig, err := SignHash(hash, priv)
	c.Assert(err, qt.IsNil)

	err = Recover(hash, sig, otherAddr)
	c.Assert(err, qt.ErrorIs, ErrBadSignature)
}
