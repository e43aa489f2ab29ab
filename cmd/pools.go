package cmd

import (
	"fmt"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/spf13/cobra"
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "Manage the tracker announce endpoints used by match",
	Long: `Manage the announce endpoints "warpchat match" connects to. The list is
stored one endpoint per line in the pools file.`,
}

var poolsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show the announce endpoints",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ui.RenderPools(cfg.Pools)
		fmt.Println(ui.MutedStyle.Render(cfg.PoolsFile))
		return nil
	},
}

var poolsAddCmd = &cobra.Command{
	Use:   "add <ws-url>",
	Short: "Add an announce endpoint",
	Example: `  warpchat pools add wss://tracker.example.com
  warpchat pools add ws://localhost:8080/announce`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pools, err := config.AddPool(cfg.Pools, args[0])
		if err != nil {
			return err
		}
		if err := config.SavePools(cfg.PoolsFile, pools); err != nil {
			return err
		}
		ui.PrintSuccessf("Added %s", args[0])
		return nil
	},
}

var poolsRemoveCmd = &cobra.Command{
	Use:     "remove <ws-url>",
	Aliases: []string{"rm"},
	Short:   "Remove an announce endpoint",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pools, removed := config.RemovePool(cfg.Pools, args[0])
		if !removed {
			return fmt.Errorf("%s is not in the list", args[0])
		}
		if err := config.SavePools(cfg.PoolsFile, pools); err != nil {
			return err
		}
		ui.PrintSuccessf("Removed %s", args[0])
		if len(pools) == 0 {
			ui.PrintWarning("The list is empty, so the built-in endpoints will be used")
		}
		return nil
	},
}

var poolsRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the built-in announce endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pools, err := config.RestoreDefaultPools(cfg.PoolsFile)
		if err != nil {
			return err
		}
		ui.PrintSuccess("Restored the default endpoints")
		ui.RenderPools(pools)
		return nil
	},
}

func init() {
	poolsCmd.AddCommand(poolsListCmd, poolsAddCmd, poolsRemoveCmd, poolsRestoreCmd)
	rootCmd.AddCommand(poolsCmd)
}
