package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/betengine/internal/domain"
)

var weiPerEther = new(big.Float).SetInt(big.NewInt(1_000_000_000_000_000_000))

func (c *Client) encode(to common.Address, contract *abi.ABI, value *big.Int, method string, args ...interface{}) (domain.TxRequest, error) {
	if to == (common.Address{}) {
		return domain.TxRequest{}, fmt.Errorf("chain: %s: %w", method, domain.ErrChainDisabled)
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return domain.TxRequest{}, fmt.Errorf("chain: %s: %w: negative value", method, domain.ErrInvalidBet)
	}
	return domain.TxRequest{
		To:    lowerHex(to),
		Data:  hexutil.Encode(data),
		Value: hexutil.EncodeBig(value),
	}, nil
}

func id(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// CreateMarket encodes createMarket(description, endTime, minBet).
func (c *Client) CreateMarket(description string, endUnix int64, minBet *big.Int) (domain.TxRequest, error) {
	if strings.TrimSpace(description) == "" {
		return domain.TxRequest{}, fmt.Errorf("chain: createMarket: %w: empty description", domain.ErrInvalidBet)
	}
	if minBet == nil {
		minBet = new(big.Int)
	}
	return c.encode(c.market, &c.abis.Market, nil, "createMarket", description, big.NewInt(endUnix), minBet)
}

// PlaceMarketBet encodes placeBet(marketId, yes) carrying value wei.
func (c *Client) PlaceMarketBet(marketID uint64, yes bool, value *big.Int) (domain.TxRequest, error) {
	return c.encode(c.market, &c.abis.Market, value, "placeBet", id(marketID), yes)
}

// ResolveMarket encodes resolveMarket(marketId, outcome).
func (c *Client) ResolveMarket(marketID uint64, outcome bool) (domain.TxRequest, error) {
	return c.encode(c.market, &c.abis.Market, nil, "resolveMarket", id(marketID), outcome)
}

// ClaimMarket encodes claimWinnings(marketId).
func (c *Client) ClaimMarket(marketID uint64) (domain.TxRequest, error) {
	return c.encode(c.market, &c.abis.Market, nil, "claimWinnings", id(marketID))
}

// CreateWager encodes createWager(claim, resolver) carrying the creator's stake.
func (c *Client) CreateWager(claim, resolver string, stake *big.Int) (domain.TxRequest, error) {
	addr, err := ParseAddress(resolver)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("chain: createWager: %w", err)
	}
	return c.encode(c.wager, &c.abis.Wager, stake, "createWager", claim, common.HexToAddress(addr))
}

// JoinWager encodes joinWager(wagerId) carrying the matching stake.
func (c *Client) JoinWager(wagerID uint64, stake *big.Int) (domain.TxRequest, error) {
	return c.encode(c.wager, &c.abis.Wager, stake, "joinWager", id(wagerID))
}

// ResolveWager encodes resolveWager(wagerId, winner).
func (c *Client) ResolveWager(wagerID uint64, winner string) (domain.TxRequest, error) {
	addr, err := ParseAddress(winner)
	if err != nil {
		return domain.TxRequest{}, fmt.Errorf("chain: resolveWager: %w", err)
	}
	return c.encode(c.wager, &c.abis.Wager, nil, "resolveWager", id(wagerID), common.HexToAddress(addr))
}

// PlacePrediction encodes placeBet(predictionId, up) carrying value wei.
func (c *Client) PlacePrediction(predictionID uint64, up bool, value *big.Int) (domain.TxRequest, error) {
	return c.encode(c.prediction, &c.abis.Prediction, value, "placeBet", id(predictionID), up)
}

// ClaimPrediction encodes claim(predictionId).
func (c *Client) ClaimPrediction(predictionID uint64) (domain.TxRequest, error) {
	return c.encode(c.prediction, &c.abis.Prediction, nil, "claim", id(predictionID))
}

// WeiToEther converts a wei amount to whole native-token units.
func WeiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return f
}

// ParseWei accepts a decimal or 0x-prefixed hex wei amount.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q: %v", domain.ErrInvalidBet, s, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: value %q", domain.ErrInvalidBet, s)
	}
	return v, nil
}
