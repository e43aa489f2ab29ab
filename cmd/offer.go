package cmd

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/spf13/cobra"
)

var offerCmd = &cobra.Command{
	Use:     "offer",
	Aliases: []string{"o"},
	Short:   "Start a direct session and print an offer to share",
	Long: `Start a direct session. Warpchat prints an offer; send it to the other
person, who runs "warpchat answer" with it and sends back the answer. Paste
that answer here to connect.

Examples:
  warpchat offer
  warpchat offer --media --video
  warpchat offer --relay --turn turn:relay.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		chat := newChatContext(cfg)
		defer chat.Close()

		sp := ui.NewConnectionSpinner("Gathering connection candidates...")
		sp.Start()
		offer, err := chat.Supervisor.StartDirect(ctx)
		if err != nil {
			sp.Error("Could not create an offer")
			return err
		}
		sp.Success("Offer ready")

		fmt.Println(ui.DescriptionView("offer", offer))
		fmt.Println()

		for {
			answer, err := readDescription(stdin, "Paste their answer:")
			if err != nil {
				return err
			}
			err = chat.Supervisor.AcceptAnswer(answer)
			if err == nil {
				break
			}
			if !errors.Is(err, failure.ErrSignalingParse) {
				return err
			}
			ui.PrintWarning("That does not look like an answer: " + err.Error())
		}

		return chat.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(offerCmd)
}
