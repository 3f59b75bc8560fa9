// Package codec implements the wire-level block codec: the transaction
// envelope and the in-progress block that accumulates it, including the
// content-hash commitment that binds the other subsystems together.
package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction is an opaque, self-delimiting signed transaction accepted for
// inclusion. Only the dynamic-fee (EIP-1559) envelope is accepted; every
// other EIP-2718 type is rejected both by NewTransaction and by
// DecodeTransaction. Equality is by hash.
type Transaction struct {
	tx *types.Transaction
}

// NewTransaction wraps a go-ethereum transaction, rejecting any envelope
// type other than dynamic-fee.
func NewTransaction(tx *types.Transaction) (*Transaction, error) {
	if tx.Type() != types.DynamicFeeTxType {
		return nil, fmt.Errorf("unsupported transaction type %d, only dynamic-fee is accepted", tx.Type())
	}
	return &Transaction{tx: tx}, nil
}

// Hash returns the transaction's unique 32-byte hash.
func (t *Transaction) Hash() common.Hash {
	return t.tx.Hash()
}

// Raw returns the canonical EIP-2718 byte encoding: a single-byte type tag
// followed by the type-specific RLP payload.
func (t *Transaction) Raw() ([]byte, error) {
	return t.tx.MarshalBinary()
}

// Sender recovers the verifiable signer address using the dynamic-fee
// signer for the given host or rollup chain ID, whichever the transaction
// was signed against.
func (t *Transaction) Sender(chainID *big.Int) (common.Address, error) {
	signer := types.LatestSignerForChainID(chainID)
	return types.Sender(signer, t.tx)
}

// Unwrap returns the underlying go-ethereum transaction for callers that
// need the full envelope (e.g. gas/fee fields).
func (t *Transaction) Unwrap() *types.Transaction {
	return t.tx
}

// Equal compares two transactions by hash.
func (t *Transaction) Equal(other *Transaction) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Hash() == other.Hash()
}

// DecodeTransaction attempts an EIP-2718 decode of raw bytes, accepting
// only the dynamic-fee envelope. Callers decoding a batch of items must
// treat a returned error as "skip this item", never as cause to abort the
// batch.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode 2718 envelope: %w", err)
	}
	return NewTransaction(tx)
}
