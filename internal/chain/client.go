// Package chain reads the market, wager and prediction contracts over
// JSON-RPC and encodes unsigned calls for a wallet to sign.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Addresses are the deployed contract addresses.
type Addresses struct {
	Market     string
	Wager      string
	Prediction string
}

// Client reads contract state and builds call data.
type Client struct {
	caller     ContractCaller
	eth        *ethclient.Client
	abis       ABIs
	market     common.Address
	wager      common.Address
	prediction common.Address
}

// Dial connects to the RPC endpoint at rpcURL.
func Dial(ctx context.Context, rpcURL string, addrs Addresses) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	c, err := New(eth, addrs)
	if err != nil {
		eth.Close()
		return nil, err
	}
	c.eth = eth
	return c, nil
}

// New builds a Client over an arbitrary caller. A nil caller still encodes
// call data but every read fails with domain.ErrChainDisabled.
func New(caller ContractCaller, addrs Addresses) (*Client, error) {
	abis, err := ParseABIs()
	if err != nil {
		return nil, err
	}
	c := &Client{caller: caller, abis: abis}
	for _, item := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"market", addrs.Market, &c.market},
		{"wager", addrs.Wager, &c.wager},
		{"prediction", addrs.Prediction, &c.prediction},
	} {
		if item.raw == "" {
			continue
		}
		if !common.IsHexAddress(item.raw) {
			return nil, fmt.Errorf("chain: %s contract %q: %w", item.name, item.raw, domain.ErrInvalidAddress)
		}
		*item.dst = common.HexToAddress(item.raw)
	}
	return c, nil
}

// Close releases the RPC connection, if Dial opened one.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// Ping checks that the RPC endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if c.eth == nil {
		return nil
	}
	if _, err := c.eth.ChainID(ctx); err != nil {
		return fmt.Errorf("chain: ping: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, to common.Address, contract *abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if to == (common.Address{}) || c.caller == nil {
		return nil, fmt.Errorf("chain: %s: %w", method, domain.ErrChainDisabled)
	}
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return values, nil
}

func (c *Client) count(ctx context.Context, to common.Address, contract *abi.ABI, method string) (uint64, error) {
	out, err := c.call(ctx, to, contract, method)
	if err != nil {
		return 0, err
	}
	n := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return n.Uint64(), nil
}

// ParseAddress validates a hex address and returns it lower-cased.
func ParseAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

func lowerHex(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return strings.ToLower(a.Hex())
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
