package ingest

import (
	"bytes"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"

	"github.com/init4tech/zenith-builder/codec"
)

func signedHex(c *qt.C) string {
	priv, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	inner := &types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		Gas:       21000,
		Value:     big.NewInt(0),
	}
	tx, err := types.SignNewTx(priv, types.LatestSignerForChainID(big.NewInt(1)), inner)
	c.Assert(err, qt.IsNil)
	raw, err := tx.MarshalBinary()
	c.Assert(err, qt.IsNil)
	return "0x" + common0xHex(raw)
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

func TestHealthcheck(t *testing.T) {
	c := qt.New(t)
	push := make(chan *codec.Transaction, 1)
	srv := New(push)

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

func TestSendRawTransactionPushesToChannel(t *testing.T) {
	c := qt.New(t)
	push := make(chan *codec.Transaction, 1)
	srv := New(push)

	hexTx := signedHex(c)
	body := []byte(`"` + hexTx + `"`)
	req := httptest.NewRequest(http.MethodPost, "/sendRawTransaction", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	select {
	case tx := <-push:
		c.Assert(tx, qt.Not(qt.IsNil))
	case <-time.After(time.Second):
		t.Fatal("transaction not pushed to channel")
	}
}

func TestSendRawTransactionRejectsMalformedHex(t *testing.T) {
	c := qt.New(t)
	push := make(chan *codec.Transaction, 1)
	srv := New(push)

	body := []byte(`"0xdeadbeef"`)
	req := httptest.NewRequest(http.MethodPost, "/sendRawTransaction", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestRPCSendRawTransaction(t *testing.T) {
	c := qt.New(t)
	push := make(chan *codec.Transaction, 1)
	srv := New(push)

	hexTx := signedHex(c)
	body := []byte(`{"id":1,"method":"eth_sendRawTransaction","params":["` + hexTx + `"]}`)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	select {
	case tx := <-push:
		c.Assert(tx, qt.Not(qt.IsNil))
	case <-time.After(time.Second):
		t.Fatal("transaction not pushed to channel")
	}
}

func TestAcceptPreservesArrivalOrderUnderBackpressure(t *testing.T) {
	c := qt.New(t)
	// Unbuffered: every send blocks until the test drains it, so any
	// handler that spills onto a goroutine instead of queuing would be
	// free to race and deliver out of arrival order.
	push := make(chan *codec.Transaction)
	srv := New(push)

	const n := 20
	hexes := make([]string, n)
	for i := range hexes {
		hexes[i] = signedHex(c)
	}

	for _, hexTx := range hexes {
		body := []byte(`"` + hexTx + `"`)
		req := httptest.NewRequest(http.MethodPost, "/sendRawTransaction", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
	}

	for i := 0; i < n; i++ {
		select {
		case tx := <-push:
			want := common.FromHex(hexes[i])
			raw, err := tx.Raw()
			c.Assert(err, qt.IsNil)
			c.Assert(raw, qt.DeepEquals, want)
		case <-time.After(time.Second):
			t.Fatalf("transaction %d not delivered in order", i)
		}
	}
}

func TestFallbackNotFound(t *testing.T) {
	c := qt.New(t)
	push := make(chan *codec.Transaction, 1)
	srv := New(push)

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}
