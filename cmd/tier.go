package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tierCmd = &cobra.Command{
	Use:   "tier",
	Short: "Show or change the subscription tier",
	Long: `Manage the subscription tier controlling retention and capacity.

Upgrading widens the limits without touching data. Downgrading
re-applies the free limits immediately and deletes whatever falls
outside them, so it requires --confirm.

Examples:
  mnemo tier show
  mnemo tier upgrade
  mnemo tier downgrade --confirm`,
}

var tierShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active tier and its limits",
	RunE:  runTierShow,
}

var tierUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Switch to the paid tier",
	RunE:  runTierUpgrade,
}

var tierDowngradeCmd = &cobra.Command{
	Use:   "downgrade",
	Short: "Switch to the free tier and apply its limits",
	RunE:  runTierDowngrade,
}

func init() {
	rootCmd.AddCommand(tierCmd)
	tierCmd.AddCommand(tierShowCmd)
	tierCmd.AddCommand(tierUpgradeCmd)
	tierCmd.AddCommand(tierDowngradeCmd)

	tierDowngradeCmd.Flags().Bool("confirm", false, "Acknowledge that messages outside free limits will be deleted")
}

func runTierShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.facade.CurrentTier(context.Background())
	if err != nil {
		return err
	}

	printJSON(cfg)
	return nil
}

func runTierUpgrade(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.facade.UpgradeToPaid(context.Background())
	if err != nil {
		return err
	}

	printJSON(cfg)
	return nil
}

func runTierDowngrade(cmd *cobra.Command, args []string) error {
	confirmed, _ := cmd.Flags().GetBool("confirm")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	evicted, err := a.facade.DowngradeToFree(context.Background(), confirmed)
	if err != nil {
		return err
	}

	fmt.Printf("downgraded to free tier, %d message(s) evicted\n", evicted)
	return nil
}
