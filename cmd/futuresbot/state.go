package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"futuresbot/internal/bot"
	"futuresbot/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the persisted risk state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted risk state as JSON",
	RunE:  runStateShow,
}

var killSwitchCmd = &cobra.Command{
	Use:   "kill-switch on|off",
	Short: "Set the kill switch in the persisted risk state",
	Long: `Kill-switch edits the stored risk state while the bot is stopped.
A running bot overwrites the stored state on exit; use
POST|DELETE /api/v1/risk/kill-switch instead.

Example:
  futuresbot kill-switch on --reason "exchange maintenance"`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runKillSwitch,
}

var ksReason string

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)

	rootCmd.AddCommand(killSwitchCmd)
	killSwitchCmd.Flags().StringVarP(&ksReason, "reason", "r", "manual", "reason recorded with the kill switch")
}

// loadRiskEngine восстанавливает риск-движок из хранилища
func loadRiskEngine(ctx context.Context) (*bot.RiskEngine, *stores, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	risk := bot.NewRiskEngine(cfg.Bot.Risk, nil)
	if err := risk.LoadState(ctx, st.state); err != nil {
		st.Close()
		return nil, nil, err
	}
	return risk, st, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	risk, st, err := loadRiskEngine(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	out, err := json.MarshalIndent(risk.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runKillSwitch(cmd *cobra.Command, args []string) error {
	mode := strings.ToLower(args[0])
	if mode != "on" && mode != "off" {
		return fmt.Errorf("expected on or off, got %q", args[0])
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	risk, st, err := loadRiskEngine(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if mode == "on" {
		risk.ActivateKillSwitch(ksReason)
	} else {
		risk.DeactivateKillSwitch()
	}

	if err := risk.SaveState(ctx, st.state); err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}

	active, reason := risk.KillSwitch()
	utils.Info("kill switch updated", utils.Bool("active", active), utils.Reason(reason))
	fmt.Fprintf(cmd.OutOrStdout(), "kill switch: %s\n", mode)
	return nil
}
