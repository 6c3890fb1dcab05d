package clients

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// ErrNodesExhausted is returned when every node of a pool failed the same call.
var ErrNodesExhausted = errors.New("all hive nodes failed")

// Pool spreads calls over a fixed list of nodes and fails over to the next
// node when one is unreachable. The rotation cursor is shared by all callers
// and advances on every attempt.
type Pool struct {
	nodes  []HiveClient
	cursor atomic.Uint64
	logger *logrus.Entry
}

var _ HiveClient = (*Pool)(nil)

// NewPool creates a pool over nodes. At least one node is required.
func NewPool(nodes []HiveClient, logger *logrus.Entry) (*Pool, error) {
	if len(nodes) == 0 {
		return nil, errors.New("node pool requires at least one node")
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		nodes:  nodes,
		logger: logger.WithField("prefix", "pool"),
	}, nil
}

// DialPool dials every url and returns a pool over the resulting clients.
func DialPool(ctx context.Context, urls []string, timeout time.Duration, logger *logrus.Entry) (*Pool, error) {
	nodes := make([]HiveClient, 0, len(urls))
	for _, url := range urls {
		client, err := NewNodeClient(ctx, url, timeout)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, client)
	}
	return NewPool(nodes, logger)
}

// Size returns the number of nodes in the pool.
func (p *Pool) Size() int {
	return len(p.nodes)
}

// Close closes every node that holds a connection.
func (p *Pool) Close() {
	for _, node := range p.nodes {
		if c, ok := node.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// GetAccounts fetches accounts from the first node that answers.
func (p *Pool) GetAccounts(ctx context.Context, names []string) ([]types.Account, error) {
	return withFailover(ctx, p, "get_accounts", false, func(node HiveClient) ([]types.Account, error) {
		return node.GetAccounts(ctx, names)
	})
}

// BroadcastTransaction broadcasts through the first node that answers. A
// node rejecting the transaction ends the pass.
func (p *Pool) BroadcastTransaction(ctx context.Context, tx *types.SignedTransaction) (types.TransactionConfirmation, error) {
	return withFailover(ctx, p, "broadcast_transaction_synchronous", true, func(node HiveClient) (types.TransactionConfirmation, error) {
		return node.BroadcastTransaction(ctx, tx)
	})
}

// GetDynamicGlobalProperties fetches the chain head from the first node that answers.
func (p *Pool) GetDynamicGlobalProperties(ctx context.Context) (types.DynamicGlobalProperties, error) {
	return withFailover(ctx, p, "get_dynamic_global_properties", false, func(node HiveClient) (types.DynamicGlobalProperties, error) {
		return node.GetDynamicGlobalProperties(ctx)
	})
}

// withFailover makes one pass over the pool starting at the shared cursor.
// With stopOnRPCError a JSON-RPC error reply ends the pass, otherwise it is
// treated like any other node failure.
func withFailover[T any](ctx context.Context, p *Pool, method string, stopOnRPCError bool, fn func(HiveClient) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for range p.nodes {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		idx := (p.cursor.Add(1) - 1) % uint64(len(p.nodes))
		node := p.nodes[idx]

		res, err := fn(node)
		if err == nil {
			return res, nil
		}

		var rpcErr *RPCError
		if stopOnRPCError && errors.As(err, &rpcErr) {
			return zero, err
		}

		p.logger.WithFields(logrus.Fields{
			"node":   describe(node, idx),
			"method": method,
			"error":  err,
		}).Warn("Hive node failed, trying next")
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %s: %w", ErrNodesExhausted, method, lastErr)
}

func describe(node HiveClient, idx uint64) string {
	if s, ok := node.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("node-%d", idx)
}
