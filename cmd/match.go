package cmd

import (
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:     "match",
	Aliases: []string{"m"},
	Short:   "Get matched with a random stranger",
	Long: `Announce yourself to the configured trackers and chat with the first
stranger you are paired with. Use /next to move on to someone else.

Examples:
  warpchat match
  warpchat match --swarm my-friends --media`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		chat := newChatContext(cfg)
		defer chat.Close()

		sp := ui.NewSimpleSpinner("Announcing to trackers...")
		sp.Start()
		if err := chat.Supervisor.StartMatchmaking(ctx); err != nil {
			sp.Error("Matchmaking is not available")
			return err
		}
		sp.Success("Looking for a stranger in swarm " + cfg.SwarmID)
		return chat.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}
