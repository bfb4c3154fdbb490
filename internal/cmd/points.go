package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/betengine/internal/points"
)

// PointsCommand returns the points command for registration.
func PointsCommand() *cobra.Command {
	pointsCmd := &cobra.Command{
		Use:   "points",
		Short: "Points calculator tools",
	}

	var (
		usd       float64
		timeframe int64
		won       bool
		asJSON    bool
	)
	calcCmd := &cobra.Command{
		Use:   "calc",
		Short: "Score one bet offline",
		Long:  `Score a bet from its USD stake and timeframe without touching any store.`,
		Example: `  betengine points calc --usd 20 --timeframe 300
  betengine points calc --usd 150 --timeframe 86400 --won=false --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			award, err := points.Calculate(usd, timeframe, won)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(award)
			}
			fmt.Fprintf(out, "stake:      $%.2f (tier x%g)\n", award.USDAmount, award.StakeTier)
			fmt.Fprintf(out, "timeframe:  %ds (x%g)\n", award.TimeframeSeconds, award.TimeframeMultiplier)
			fmt.Fprintf(out, "won:        %t\n", award.Won)
			fmt.Fprintf(out, "points:     %d\n", award.Points)
			return nil
		},
	}
	calcCmd.Flags().Float64Var(&usd, "usd", 0, "stake in USD")
	calcCmd.Flags().Int64Var(&timeframe, "timeframe", 0, "bet timeframe in seconds")
	calcCmd.Flags().BoolVar(&won, "won", true, "whether the bet won")
	calcCmd.Flags().BoolVar(&asJSON, "json", false, "print the breakdown as JSON")
	_ = calcCmd.MarkFlagRequired("usd")
	_ = calcCmd.MarkFlagRequired("timeframe")

	pointsCmd.AddCommand(calcCmd)
	return pointsCmd
}
