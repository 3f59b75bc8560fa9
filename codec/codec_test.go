package codec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	qt "github.com/frankban/quicktest"
)

func signedDynamicFeeTx(t *testing.T, nonce uint64) *Transaction {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	to := crypto.PubkeyToAddress(priv.PublicKey)
	chainID := big.NewInt(1)
	inner := &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      []byte{0x01, 0x02, 0x03},
	}
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignNewTx(priv, signer, inner)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := NewTransaction(signed)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestCodecRoundTrip(t *testing.T) {
	c := qt.New(t)

	tx1 := signedDynamicFeeTx(t, 0)
	tx2 := signedDynamicFeeTx(t, 1)

	block := NewBlock()
	block.Append(tx1)
	block.Append(tx2)

	raw, err := block.Encode()
	c.Assert(err, qt.IsNil)

	decoded := DecodeBlock(raw)
	c.Assert(decoded, qt.HasLen, 2)
	c.Assert(decoded[0].Hash(), qt.Equals, tx1.Hash())
	c.Assert(decoded[1].Hash(), qt.Equals, tx2.Hash())
}

func TestCodecTwoIdenticalTransactions(t *testing.T) {
	c := qt.New(t)

	tx := signedDynamicFeeTx(t, 2)
	block := NewBlock()
	block.Append(tx)
	block.Append(tx)

	raw, err := block.Encode()
	c.Assert(err, qt.IsNil)

	decoded := DecodeBlock(raw)
	c.Assert(decoded, qt.HasLen, 2)
	c.Assert(decoded[0].Hash(), qt.Equals, tx.Hash())
	c.Assert(decoded[1].Hash(), qt.Equals, tx.Hash())
}

func TestCodecJunkToleranceOuterList(t *testing.T) {
	c := qt.New(t)

	decoded := DecodeBlock([]byte{0xff, 0x00, 0x01, 0x02})
	c.Assert(decoded, qt.HasLen, 0)
}

func TestCodecJunkToleranceInnerItem(t *testing.T) {
	c := qt.New(t)

	tx := signedDynamicFeeTx(t, 3)
	raw, err := tx.Raw()
	c.Assert(err, qt.IsNil)

	block := NewBlock()
	block.Append(tx)
	valid, err := block.Encode()
	c.Assert(err, qt.IsNil)

	// Re-encode the outer list with one well-formed item and one piece of
	// junk; the junk item must be skipped, not abort the whole decode.
	var outer [][]byte
	c.Assert(rlp.DecodeBytes(valid, &outer), qt.IsNil)
	outer = append(outer, []byte{0xde, 0xad, 0xbe, 0xef})
	mixed, err := rlp.EncodeToBytes(outer)
	c.Assert(err, qt.IsNil)

	items := DecodeBlock(mixed)
	c.Assert(items, qt.HasLen, 1)
	c.Assert(items[0].Hash(), qt.Equals, tx.Hash())
	c.Assert(raw, qt.Not(qt.HasLen), 0)
}

func TestContentHashDeterminism(t *testing.T) {
	c := qt.New(t)

	txA := signedDynamicFeeTx(t, 10)
	txB := signedDynamicFeeTx(t, 11)

	forward := NewBlock()
	forward.Append(txA)
	forward.Append(txB)
	forwardHash, err := forward.Hash()
	c.Assert(err, qt.IsNil)

	reversed := NewBlock()
	reversed.Append(txB)
	reversed.Append(txA)
	reversedHash, err := reversed.Hash()
	c.Assert(err, qt.IsNil)

	c.Assert(forwardHash, qt.Not(qt.Equals), reversedHash)

	// Hashing twice without mutation must not recompute or change the value.
	again, err := forward.Hash()
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.Equals, forwardHash)
}

func TestEmptyBlockIsEmpty(t *testing.T) {
	c := qt.New(t)
	c.Assert(NewBlock().Empty(), qt.IsTrue)
}
