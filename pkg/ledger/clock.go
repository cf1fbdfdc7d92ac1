package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultBlockInterval makes 52560 blocks roughly one year.
const DefaultBlockInterval = 10 * time.Minute

// Clock supplies the current block height to contracts.
type Clock interface {
	Height() uint64
}

// BlockClock derives block height from wall time elapsed since genesis.
type BlockClock struct {
	genesis  time.Time
	interval time.Duration
	base     uint64
	now      func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewBlockClock starts counting blocks at base from genesis.
func NewBlockClock(genesis time.Time, interval time.Duration, base uint64) *BlockClock {
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	return &BlockClock{genesis: genesis.UTC(), interval: interval, base: base, now: time.Now}
}

// Height never decreases, even if the wall clock steps backwards.
func (c *BlockClock) Height() uint64 {
	elapsed := c.now().Sub(c.genesis)
	var height uint64
	if elapsed > 0 {
		height = uint64(elapsed / c.interval)
	}
	height += c.base

	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.last {
		return c.last
	}
	c.last = height
	return height
}

// Genesis returns the time block zero was produced.
func (c *BlockClock) Genesis() time.Time { return c.genesis }

// ManualClock is advanced explicitly; tests and offline tooling use it.
type ManualClock struct {
	mu     sync.Mutex
	height uint64
}

// NewManualClock starts at height.
func NewManualClock(height uint64) *ManualClock {
	return &ManualClock{height: height}
}

func (c *ManualClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *ManualClock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// Set jumps to height.
func (c *ManualClock) Set(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
}

// GenesisStore is the subset of the world state used to pin the genesis time.
type GenesisStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
}

const (
	chainNamespace = "chain"
	genesisKey     = "genesis"
)

// LoadGenesis returns the persisted genesis time, recording now when the store is fresh
// so heights keep counting across restarts.
func LoadGenesis(ctx context.Context, store GenesisStore, now time.Time) (time.Time, error) {
	raw, err := store.Get(ctx, chainNamespace, genesisKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("read genesis: %w", err)
	}
	if raw != nil {
		genesis, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return time.Time{}, fmt.Errorf("decode genesis %q: %w", raw, err)
		}
		return genesis.UTC(), nil
	}
	genesis := now.UTC()
	if err := store.Put(ctx, chainNamespace, genesisKey, []byte(genesis.Format(time.RFC3339Nano))); err != nil {
		return time.Time{}, fmt.Errorf("write genesis: %w", err)
	}
	return genesis, nil
}
