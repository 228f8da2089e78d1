package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cogman/internal/config"
	"cogman/internal/eps"
	"cogman/internal/gate"
)

var (
	gateStateJSON string
	gateHistory   string
	gateRuleFail  bool
	gateProfile   string
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Admission gate tools",
}

// gateEvalCmd runs one admission decision outside the loop, for policy
// tuning and debugging.
var gateEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate one energetic state against the admission ladder",
	Example: `  cogman gate eval --state '{"I":1,"S":0.9,"H":0.3,"E_mu":45}'
  cogman gate eval --state '{"S":0.9,"H":0.3,"E_mu":20}' --history 50,40,30,20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		gc := cfg.Gate
		if gateProfile != "" {
			gc.ActiveProfile = gateProfile
		}
		policy, err := gc.ResolvePolicy()
		if err != nil {
			return err
		}

		var state eps.State
		if err := json.Unmarshal([]byte(gateStateJSON), &state); err != nil {
			return fmt.Errorf("parse --state: %w", err)
		}
		if err := state.Validate(); err != nil {
			return err
		}

		history, err := parseHistory(gateHistory)
		if err != nil {
			return err
		}

		evaluator, err := gate.NewCoreEvaluator(policy.Bands)
		if err != nil {
			return err
		}
		result, err := evaluator.Evaluate(gate.DecisionInput{
			Metrics: gate.Metrics{
				EMu: state.EMu,
				H:   state.H,
				S:   state.S,
			},
			RuleFail: gateRuleFail,
			History:  history,
			Context:  policy.Name,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func parseHistory(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse --history: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func init() {
	gateEvalCmd.Flags().StringVar(&gateStateJSON, "state", "{}", "energetic state as JSON")
	gateEvalCmd.Flags().StringVar(&gateHistory, "history", "", "comma-separated E_mu history, oldest first")
	gateEvalCmd.Flags().BoolVar(&gateRuleFail, "rule-fail", false, "assert an external rule failure")
	gateEvalCmd.Flags().StringVar(&gateProfile, "profile", "", "gate profile to evaluate under")
	gateCmd.AddCommand(gateEvalCmd)
}
