// Package txpool implements the transaction-pool poller (C3): it polls an
// external pool for candidate transactions, deduplicates against a sighting
// map with a bounded TTL, and emits freshly seen transactions downstream.
package txpool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/log"
)

// Config configures a Poller.
type Config struct {
	// PoolURL is the pool's base URL; the poller issues GET {PoolURL}/get
	// to fetch candidate pool contents (the sibling POST {PoolURL}/add is
	// used only by the test harness, never by the poller itself).
	PoolURL string
	// PollInterval is the delay between successive polls.
	PollInterval time.Duration
	// CacheTTL bounds how long a transaction hash is remembered in the
	// sighting map before it is eligible to be re-emitted.
	CacheTTL time.Duration
}

// Poller implements C3. Its sighting map is guarded by mu, so Poll, Evict
// and Run may be called from different goroutines.
type Poller struct {
	cfg    Config
	client *http.Client

	mu   sync.Mutex
	seen map[common.Hash]time.Time
}

// New constructs a Poller against cfg.
func New(cfg Config) *Poller {
	return &Poller{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		seen:   make(map[common.Hash]time.Time),
	}
}

// poolEntry is one row of the pool's JSON response: an opaque key and a
// value that is either a hex string, or a JSON-embedded transaction object
// in the shape eth_getTransactionByHash returns.
type poolEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Poll performs a single fetch-and-decode pass against the pool, evicts
// expired sighting-map entries, and returns the transactions not currently
// present in the sighting map. An entry's deadline is fixed at first
// sighting; repeat sightings before eviction do not extend it, so a
// still-present hash is re-emitted once per TTL window rather than
// suppressed for as long as the pool keeps reporting it.
func (p *Poller) Poll(ctx context.Context) ([]*codec.Transaction, error) {
	entries, err := p.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pool: %w", err)
	}
	p.Evict()

	now := time.Now()
	fresh := make([]*codec.Transaction, 0, len(entries))

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		tx, err := decodeEntryValue(e.Value)
		if err != nil {
			log.Debugw("discarding undecodable pool entry", "key", e.Key, "error", err.Error())
			continue
		}
		hash := tx.Hash()
		if _, ok := p.seen[hash]; !ok {
			p.seen[hash] = now
			fresh = append(fresh, tx)
		}
	}
	return fresh, nil
}

// Evict drops sighting-map entries older than the configured TTL. It must
// be called periodically or the map grows unbounded.
func (p *Poller) Evict() {
	cutoff := time.Now().Add(-p.cfg.CacheTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for hash, seenAt := range p.seen {
		if seenAt.Before(cutoff) {
			delete(p.seen, hash)
		}
	}
}

// Run drives the poll/emit/evict/sleep loop until ctx is canceled, pushing
// freshly seen transactions to out. out is never closed by Run; the caller
// owns its lifecycle.
func (p *Poller) Run(ctx context.Context, out chan<- *codec.Transaction) {
	for {
		fresh, err := p.Poll(ctx)
		if err != nil {
			log.Warnw("tx pool poll failed", "url", p.cfg.PoolURL, "error", err.Error())
		}
		for _, tx := range fresh {
			select {
			case out <- tx:
			case <-ctx.Done():
				return
			}
		}
		p.Evict()

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]poolEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.PoolURL+"/get", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("pool returned status %d: %s", res.StatusCode, body)
	}

	var entries []poolEntry
	if err := json.NewDecoder(res.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode pool response: %w", err)
	}
	return entries, nil
}

// decodeEntryValue tolerates two shapes for a pool entry's value: a
// hex-encoded EIP-2718 envelope string, or a JSON object in the
// eth_getTransactionByHash shape. The latter is decoded using
// go-ethereum's own Transaction.UnmarshalJSON rather than a bespoke schema.
func decodeEntryValue(raw json.RawMessage) (*codec.Transaction, error) {
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err == nil {
		return decodeHexTransaction(hexStr)
	}

	var gethTx types.Transaction
	if err := gethTx.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("value is neither a hex string nor a decodable transaction object: %w", err)
	}
	return codec.NewTransaction(&gethTx)
}

func decodeHexTransaction(hexStr string) (*codec.Transaction, error) {
	raw := common.FromHex(hexStr)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty or malformed hex transaction")
	}
	return codec.DecodeTransaction(raw)
}
