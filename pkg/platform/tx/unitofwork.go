package tx

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sort"
	"sync"
)

// UnitOfWork groups several store writes into one atomic scope. Keys name
// the resources the work touches so lock-based implementations can serialize
// conflicting work without a global lock.
type UnitOfWork interface {
	Run(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// SQLUnitOfWork wraps each unit of work in a database transaction. The
// transaction travels through context, so any store that joins via From
// participates in the same commit.
type SQLUnitOfWork struct {
	db *sql.DB
}

func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db}
}

func (u *SQLUnitOfWork) Run(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, u.db, fn)
}

const lockShardCount = 128

// ShardedUnitOfWork serializes units of work touching the same keys through
// a fixed pool of mutexes, for the in-memory stores. Shards are locked in
// index order so two units touching overlapping key sets cannot deadlock.
type ShardedUnitOfWork struct {
	shards [lockShardCount]sync.Mutex
}

func NewShardedUnitOfWork() *ShardedUnitOfWork {
	return &ShardedUnitOfWork{}
}

func (u *ShardedUnitOfWork) Run(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	indices := shardIndices(keys)
	for _, i := range indices {
		u.shards[i].Lock()
	}
	defer func() {
		for j := len(indices) - 1; j >= 0; j-- {
			u.shards[indices[j]].Unlock()
		}
	}()

	return fn(ctx)
}

func shardIndices(keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	indices := make([]int, 0, len(keys))
	for _, key := range keys {
		h := fnv.New32a()
		_, _ = h.Write([]byte(key))
		i := int(h.Sum32() % lockShardCount)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}
