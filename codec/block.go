package codec

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Block is an in-progress, ordered sequence of transactions with a
// jointly-invalidated memoized encoding and content hash. It is owned by
// exactly one writer (the assembly engine) at a time; once sealed and
// handed off, callers must treat it as immutable.
type Block struct {
	mu  sync.Mutex
	txs []*Transaction

	memoized bool
	raw      []byte
	hash     common.Hash
}

// NewBlock returns a fresh, empty in-progress block.
func NewBlock() *Block {
	return &Block{}
}

// Append adds a transaction to the end of the block in arrival order and
// clears the memoized encoding and hash.
func (b *Block) Append(tx *Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, tx)
	b.memoized = false
}

// Len returns the number of transactions currently held.
func (b *Block) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.txs)
}

// Empty reports whether the block holds no transactions. An empty block
// must never be emitted downstream.
func (b *Block) Empty() bool {
	return b.Len() == 0
}

// Transactions returns the ordered transaction list. Callers must not
// mutate the returned slice.
func (b *Block) Transactions() []*Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Transaction, len(b.txs))
	copy(out, b.txs)
	return out
}

// Encode computes, memoizing, raw = rlp_list(encode_2718(tx) for tx in
// txs): a length-prefixed list of opaque per-transaction byte strings.
func (b *Block) Encode() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, _, err := b.memoize()
	return raw, err
}

// Hash returns the content commitment keccak256(Encode()), memoizing both
// alongside each other so neither is computed more than once per seal.
func (b *Block) Hash() (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, hash, err := b.memoize()
	return hash, err
}

func (b *Block) memoize() ([]byte, common.Hash, error) {
	if b.memoized {
		return b.raw, b.hash, nil
	}
	items := make([][]byte, len(b.txs))
	for i, tx := range b.txs {
		raw, err := tx.Raw()
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("encode transaction %d: %w", i, err)
		}
		items[i] = raw
	}
	raw, err := rlp.EncodeToBytes(items)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("rlp-encode block: %w", err)
	}
	b.raw = raw
	b.hash = crypto.Keccak256Hash(raw)
	b.memoized = true
	return b.raw, b.hash, nil
}

// DecodeBlock decodes an RLP list of EIP-2718 byte strings into an ordered
// transaction list. Decoding is best-effort: a malformed outer list yields
// an empty result, and a malformed or non-dynamic-fee inner item is
// skipped rather than aborting the batch, so on-chain commitments remain
// computable even when some blob bytes are non-conforming.
func DecodeBlock(raw []byte) []*Transaction {
	var items [][]byte
	if err := rlp.DecodeBytes(raw, &items); err != nil {
		return nil
	}
	out := make([]*Transaction, 0, len(items))
	for _, item := range items {
		tx, err := DecodeTransaction(item)
		if err != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}
