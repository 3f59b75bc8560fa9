// Package web3rpc is the host-chain RPC client used by the submission
// pipeline: a single-endpoint wrapper around ethclient, with structured
// JSON-RPC error classification carried over from the teacher's
// multi-endpoint client. No endpoint rotation or retry logic survives here:
// the design explicitly leaves retries to the poller's re-sighting window.
package web3rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client wraps a single host-chain JSON-RPC endpoint.
type Client struct {
	eth *ethclient.Client
}

// Dial connects to a single host-chain RPC endpoint. No pool, no rotation:
// a hung or failing provider stalls the calling stage, by design.
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial host rpc %s: %w", rawurl, err)
	}
	return &Client{eth: eth}, nil
}

// BlockNumber returns the current host chain head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// CallContract performs an eth_call against the given block tag (nil means
// "latest"; callers pass the pending tag via rpc.PendingBlockNumber).
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, call, blockNumber)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// PendingCallContract performs an eth_call at the pending block tag, the
// tag the submission pipeline's SIMULATE step requires.
func (c *Client) PendingCallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	out, err := c.eth.PendingCallContract(ctx, call)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// SendTransaction dispatches a fully-built transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return classify(err)
	}
	return nil
}

// PendingNonceAt returns the next nonce for account, including pending
// transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// HeaderByNumber fetches a block header; a nil number means "latest".
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	h, err := c.eth.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, classify(err)
	}
	return h, nil
}

// SuggestGasTipCap asks the provider's fee filler for a priority fee
// suggestion; the submission pipeline overrides it with a fixed constant
// per the fee policy, but it remains available for callers that want it.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return tip, nil
}

// BlobBaseFee retrieves the current blob base fee via eth_blobBaseFee,
// used by the provider's fee filler when constructing blob transactions.
func (c *Client) BlobBaseFee(ctx context.Context) (*big.Int, error) {
	var hexFee string
	if err := c.eth.Client().CallContext(ctx, &hexFee, "eth_blobBaseFee"); err != nil {
		return nil, classify(err)
	}
	f, ok := new(big.Int).SetString(hexFee[2:], 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex blob base fee %q", hexFee)
	}
	return f, nil
}

// RPCError is a structured JSON-RPC error response, as opposed to a plain
// transport failure. The submission pipeline treats its presence as
// StructuredRpcError (drop the batch) and its absence as TransportError
// (also drop the batch, per the spec's undifferentiated simulation-error
// policy).
type RPCError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    hexutil.Bytes `json:"data"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code: %d, data: %s)", e.Message, e.Code, e.Data.String())
}

// ParseError extracts a structured RPCError from err, if the underlying
// transport returned a well-formed JSON-RPC error object. It returns nil
// when err carries no structured error information.
func ParseError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return nil
	}
	out := &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		switch v := dataErr.ErrorData().(type) {
		case []byte:
			out.Data = hexutil.Bytes(v)
		case string:
			if b, derr := hexutil.Decode(v); derr == nil {
				out.Data = hexutil.Bytes(b)
			}
		}
	}
	return out
}

// IsStructured reports whether err (as returned by a Client method) wraps a
// structured JSON-RPC error response, as opposed to a bare transport
// failure.
func IsStructured(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// AsRPCError extracts the structured RPCError wrapped in err, if any.
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	ok := errors.As(err, &rpcErr)
	return rpcErr, ok
}

// classify rewraps a raw ethclient error so that a structured JSON-RPC
// error response, if present, is recoverable via errors.As against
// *RPCError without callers needing to know about go-ethereum's own
// gethrpc.Error/DataError interfaces.
func classify(err error) error {
	if rpcErr := ParseError(err); rpcErr != nil {
		return fmt.Errorf("%s: %w", err.Error(), rpcErr)
	}
	return err
}
