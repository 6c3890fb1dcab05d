package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// DefaultTimeout is the per call timeout of a node client.
const DefaultTimeout = 8 * time.Second

// DefaultNodes are the public Hive API nodes used when none are configured.
var DefaultNodes = []string{
	"https://api.hive.blog",
	"https://api.deathwing.me",
	"https://techcoderx.com",
	"https://rpc.ausbit.dev",
	"https://hive-api.arcange.eu",
}

// HiveClient defines the ledger operations the facilitator needs.
type HiveClient interface {
	GetAccounts(ctx context.Context, names []string) ([]types.Account, error)
	BroadcastTransaction(ctx context.Context, tx *types.SignedTransaction) (types.TransactionConfirmation, error)
	GetDynamicGlobalProperties(ctx context.Context) (types.DynamicGlobalProperties, error)
}

// RPCError is a JSON-RPC error reply. The node was reachable and refused the
// request, so retrying it elsewhere will not help.
type RPCError struct {
	Node    string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node %s rejected request (code %d): %s", e.Node, e.Code, e.Message)
}

// NodeClient talks to a single Hive API node over JSON-RPC.
type NodeClient struct {
	url     string
	timeout time.Duration
	rpc     *rpc.Client
}

// NewNodeClient creates a new node client. This function can be overridden in tests.
var NewNodeClient = func(ctx context.Context, url string, timeout time.Duration) (*NodeClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &NodeClient{url: url, timeout: timeout, rpc: client}, nil
}

// String returns the node url.
func (c *NodeClient) String() string {
	return c.url
}

// Close releases the underlying connection.
func (c *NodeClient) Close() {
	c.rpc.Close()
}

// GetAccounts fetches the accounts with the given names. Unknown names are
// omitted from the result.
func (c *NodeClient) GetAccounts(ctx context.Context, names []string) ([]types.Account, error) {
	var accounts []types.Account
	if err := c.call(ctx, &accounts, "get_accounts", names); err != nil {
		return nil, err
	}
	return accounts, nil
}

// BroadcastTransaction broadcasts a signed transaction and waits for it to be
// included in a block.
func (c *NodeClient) BroadcastTransaction(ctx context.Context, tx *types.SignedTransaction) (types.TransactionConfirmation, error) {
	var confirmation types.TransactionConfirmation

	// Nodes reject a null extensions list
	payload := *tx
	if payload.Extensions == nil {
		payload.Extensions = []json.RawMessage{}
	}

	if err := c.call(ctx, &confirmation, "broadcast_transaction_synchronous", payload); err != nil {
		return types.TransactionConfirmation{}, err
	}
	return confirmation, nil
}

// GetDynamicGlobalProperties fetches the chain head state.
func (c *NodeClient) GetDynamicGlobalProperties(ctx context.Context) (types.DynamicGlobalProperties, error) {
	var props types.DynamicGlobalProperties
	if err := c.call(ctx, &props, "get_dynamic_global_properties"); err != nil {
		return types.DynamicGlobalProperties{}, err
	}
	return props, nil
}

// call invokes a condenser API method through the "call" envelope.
func (c *NodeClient) call(ctx context.Context, result any, method string, params ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if params == nil {
		params = []any{}
	}
	err := c.rpc.CallContext(ctx, result, "call", "condenser_api", method, params)
	if err == nil {
		return nil
	}

	// Separate a refusal from a transport failure
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Node: c.url, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("%s %s: %w", c.url, method, err)
}
