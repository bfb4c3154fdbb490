package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// Output tuples. Field names follow the ABI output names in camel case so
// abi.Arguments.Copy can fill them.
type marketTuple struct {
	Description string
	EndTime     *big.Int
	YesPool     *big.Int
	NoPool      *big.Int
	MinBet      *big.Int
	Resolved    bool
	Outcome     bool
	Creator     common.Address
}

type positionTuple struct {
	YesAmount *big.Int
	NoAmount  *big.Int
	Claimed   bool
}

type wagerTuple struct {
	Claim        string
	Resolver     common.Address
	Stake        *big.Int
	Participants []common.Address
	Resolved     bool
	Winner       common.Address
}

type predictionTuple struct {
	Symbol     string
	Timeframe  *big.Int
	StartPrice *big.Int
	EndPrice   *big.Int
	UpPool     *big.Int
	DownPool   *big.Int
	Resolved   bool
	UpWon      bool
}

type userBetTuple struct {
	Amount  *big.Int
	Up      bool
	Claimed bool
}

func copyTuple(contract *abi.ABI, method string, values []interface{}, dst interface{}) error {
	if err := contract.Methods[method].Outputs.Copy(dst, values); err != nil {
		return fmt.Errorf("chain: decode %s: %w", method, err)
	}
	return nil
}

// GetMarket reads one market.
func (c *Client) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	out, err := c.call(ctx, c.market, &c.abis.Market, "getMarket", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Market{}, err
	}
	var t marketTuple
	if err := copyTuple(&c.abis.Market, "getMarket", out, &t); err != nil {
		return domain.Market{}, err
	}
	if t.Creator == (common.Address{}) {
		return domain.Market{}, fmt.Errorf("chain: market %d: %w", id, domain.ErrNotFound)
	}
	return domain.Market{
		ID:          id,
		Description: t.Description,
		EndTime:     unixTime(t.EndTime),
		YesPool:     t.YesPool,
		NoPool:      t.NoPool,
		MinBet:      t.MinBet,
		Resolved:    t.Resolved,
		Outcome:     t.Outcome,
		Creator:     lowerHex(t.Creator),
	}, nil
}

// MarketCount returns the number of markets created.
func (c *Client) MarketCount(ctx context.Context) (uint64, error) {
	return c.count(ctx, c.market, &c.abis.Market, "marketCount")
}

// GetMarketPosition reads a bettor's stake in a market.
func (c *Client) GetMarketPosition(ctx context.Context, id uint64, user string) (domain.MarketPosition, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return domain.MarketPosition{}, err
	}
	out, err := c.call(ctx, c.market, &c.abis.Market, "getUserPosition",
		new(big.Int).SetUint64(id), common.HexToAddress(addr))
	if err != nil {
		return domain.MarketPosition{}, err
	}
	var t positionTuple
	if err := copyTuple(&c.abis.Market, "getUserPosition", out, &t); err != nil {
		return domain.MarketPosition{}, err
	}
	return domain.MarketPosition{YesAmount: t.YesAmount, NoAmount: t.NoAmount, Claimed: t.Claimed}, nil
}

// GetWager reads one wager.
func (c *Client) GetWager(ctx context.Context, id uint64) (domain.Wager, error) {
	out, err := c.call(ctx, c.wager, &c.abis.Wager, "getWager", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Wager{}, err
	}
	var t wagerTuple
	if err := copyTuple(&c.abis.Wager, "getWager", out, &t); err != nil {
		return domain.Wager{}, err
	}
	if t.Resolver == (common.Address{}) && len(t.Participants) == 0 {
		return domain.Wager{}, fmt.Errorf("chain: wager %d: %w", id, domain.ErrNotFound)
	}
	participants := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		participants = append(participants, lowerHex(p))
	}
	return domain.Wager{
		ID:           id,
		Claim:        t.Claim,
		Resolver:     lowerHex(t.Resolver),
		Stake:        t.Stake,
		Participants: participants,
		Resolved:     t.Resolved,
		Winner:       lowerHex(t.Winner),
	}, nil
}

// WagerCount returns the number of wagers created.
func (c *Client) WagerCount(ctx context.Context) (uint64, error) {
	return c.count(ctx, c.wager, &c.abis.Wager, "wagerCount")
}

// GetPrediction reads one price prediction round.
func (c *Client) GetPrediction(ctx context.Context, id uint64) (domain.Prediction, error) {
	out, err := c.call(ctx, c.prediction, &c.abis.Prediction, "getPrediction", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Prediction{}, err
	}
	var t predictionTuple
	if err := copyTuple(&c.abis.Prediction, "getPrediction", out, &t); err != nil {
		return domain.Prediction{}, err
	}
	if t.Symbol == "" && (t.Timeframe == nil || t.Timeframe.Sign() == 0) {
		return domain.Prediction{}, fmt.Errorf("chain: prediction %d: %w", id, domain.ErrNotFound)
	}
	return domain.Prediction{
		ID:               id,
		Symbol:           t.Symbol,
		TimeframeSeconds: t.Timeframe.Int64(),
		StartPrice:       t.StartPrice,
		EndPrice:         t.EndPrice,
		UpPool:           t.UpPool,
		DownPool:         t.DownPool,
		Resolved:         t.Resolved,
		UpWon:            t.UpWon,
	}, nil
}

// PredictionCount returns the number of prediction rounds.
func (c *Client) PredictionCount(ctx context.Context) (uint64, error) {
	return c.count(ctx, c.prediction, &c.abis.Prediction, "predictionCount")
}

// GetPredictionBet reads a bettor's stake in a prediction round.
func (c *Client) GetPredictionBet(ctx context.Context, id uint64, user string) (domain.PredictionBet, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return domain.PredictionBet{}, err
	}
	out, err := c.call(ctx, c.prediction, &c.abis.Prediction, "getUserBet",
		new(big.Int).SetUint64(id), common.HexToAddress(addr))
	if err != nil {
		return domain.PredictionBet{}, err
	}
	var t userBetTuple
	if err := copyTuple(&c.abis.Prediction, "getUserBet", out, &t); err != nil {
		return domain.PredictionBet{}, err
	}
	return domain.PredictionBet{Amount: t.Amount, Up: t.Up, Claimed: t.Claimed}, nil
}

// Counts reads all three instance counters.
func (c *Client) Counts(ctx context.Context) (domain.ContractCounts, error) {
	var (
		out domain.ContractCounts
		err error
	)
	if out.Markets, err = c.MarketCount(ctx); err != nil {
		return out, err
	}
	if out.Wagers, err = c.WagerCount(ctx); err != nil {
		return out, err
	}
	if out.Predictions, err = c.PredictionCount(ctx); err != nil {
		return out, err
	}
	return out, nil
}
