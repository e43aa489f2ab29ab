package cmd

import (
	"fmt"

	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:     "answer [offer]",
	Aliases: []string{"a"},
	Short:   "Answer an offer from \"warpchat offer\"",
	Long: `Answer a direct session offer. Pass the offer as an argument or paste it
when asked, then send the printed answer back to the person who made it.

Examples:
  warpchat answer
  warpchat answer '{"type":"offer","sdp":"..."}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var offer string
		if len(args) == 1 {
			offer = args[0]
		} else if offer, err = readDescription(stdin, "Paste their offer:"); err != nil {
			return err
		}

		chat := newChatContext(cfg)
		defer chat.Close()

		sp := ui.NewConnectionSpinner("Gathering connection candidates...")
		sp.Start()
		answer, err := chat.Supervisor.GenerateAnswer(ctx, offer)
		if err != nil {
			sp.Error("Could not answer that offer")
			return err
		}
		sp.Success("Answer ready")

		fmt.Println(ui.DescriptionView("answer", answer))
		fmt.Println()
		ui.PrintInfo("Waiting for them to paste it...")

		return chat.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(answerCmd)
}
