package txpool

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

func signedTx(c *qt.C, nonce uint64) *types.Transaction {
	priv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		Gas:       21000,
		To:        nil,
		Value:     big.NewInt(0),
	})
	signed, err := types.SignNewTx(priv, types.LatestSignerForChainID(big.NewInt(1)), tx.Inner())
	c.Assert(err, qt.IsNil)
	return signed
}

func poolServer(c *qt.C, txs []*types.Transaction) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := make([]poolEntry, 0, len(txs))
		for i, tx := range txs {
			raw, err := tx.MarshalBinary()
			c.Assert(err, qt.IsNil)
			hexVal, err := json.Marshal("0x" + common0xHex(raw))
			c.Assert(err, qt.IsNil)
			entries = append(entries, poolEntry{Key: tx.Hash().Hex(), Value: hexVal})
			_ = i
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}))
}

func common0xHex(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestPollerDedupesAcrossPolls(t *testing.T) {
	c := qt.New(t)

	tx := signedTx(c, 0)
	srv := poolServer(c, []*types.Transaction{tx})
	defer srv.Close()

	p := New(Config{PoolURL: srv.URL, PollInterval: time.Hour, CacheTTL: time.Hour})

	first, err := p.Poll(t.Context())
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.HasLen, 1)

	second, err := p.Poll(t.Context())
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.HasLen, 0)
}

func TestPollerEvictAllowsReemitAfterTTL(t *testing.T) {
	c := qt.New(t)

	tx := signedTx(c, 0)
	srv := poolServer(c, []*types.Transaction{tx})
	defer srv.Close()

	p := New(Config{PoolURL: srv.URL, PollInterval: time.Hour, CacheTTL: time.Millisecond})

	first, err := p.Poll(t.Context())
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.HasLen, 1)

	time.Sleep(5 * time.Millisecond)
	p.Evict()

	second, err := p.Poll(t.Context())
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.HasLen, 1)
}

func TestPollerSkipsUndecodableEntriesWithoutFailingBatch(t *testing.T) {
	c := qt.New(t)

	good := signedTx(c, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := good.MarshalBinary()
		c.Assert(err, qt.IsNil)
		goodVal, err := json.Marshal("0x" + common0xHex(raw))
		c.Assert(err, qt.IsNil)
		junkVal, err := json.Marshal("0xdeadbeef")
		c.Assert(err, qt.IsNil)
		entries := []poolEntry{
			{Key: "junk", Value: junkVal},
			{Key: good.Hash().Hex(), Value: goodVal},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}))
	defer srv.Close()

	p := New(Config{PoolURL: srv.URL, PollInterval: time.Hour, CacheTTL: time.Hour})
	fresh, err := p.Poll(t.Context())
	c.Assert(err, qt.IsNil)
	c.Assert(fresh, qt.HasLen, 1)
	c.Assert(fresh[0].Hash(), qt.Equals, good.Hash())
}
