package chain

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/market.json
var marketABIJSON string

//go:embed abi/wager.json
var wagerABIJSON string

//go:embed abi/prediction.json
var predictionABIJSON string

// ABIs holds the parsed contract interfaces.
type ABIs struct {
	Market     abi.ABI
	Wager      abi.ABI
	Prediction abi.ABI
}

// ParseABIs parses the embedded contract interfaces.
func ParseABIs() (ABIs, error) {
	var out ABIs
	for _, item := range []struct {
		name string
		raw  string
		dst  *abi.ABI
	}{
		{"market", marketABIJSON, &out.Market},
		{"wager", wagerABIJSON, &out.Wager},
		{"prediction", predictionABIJSON, &out.Prediction},
	} {
		parsed, err := abi.JSON(strings.NewReader(item.raw))
		if err != nil {
			return ABIs{}, fmt.Errorf("chain: parse %s abi: %w", item.name, err)
		}
		*item.dst = parsed
	}
	return out, nil
}
