package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/ui"
	"github.com/BioHazard786/Warpchat/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagRelay       bool
	flagPoolsFile   string
	flagSwarm       string
	flagDownloadDir string
	flagMedia       bool
	flagVideo       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpchat",
	Short: "Peer-to-peer chat, calls and file sharing over WebRTC",
	Long: `Warpchat connects you to one other person over a direct WebRTC connection.
Chat, start a voice or video call, share your screen and send files, with no
server in the middle once you are connected.

Pair up by copying an offer and an answer between two terminals, or let a
public tracker match you with a random stranger.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig layers the persistent flags over env, file and defaults. Only
// flags the user actually set take part.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := config.Options{
		ConfigFile:  flagConfig,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		PoolsFile:   flagPoolsFile,
		SwarmID:     flagSwarm,
		DownloadDir: flagDownloadDir,
	}
	flags := cmd.Flags()
	if flags.Changed("relay") {
		opts.ForceRelay = &flagRelay
	}
	if flags.Changed("media") {
		opts.Media = &flagMedia
	}
	if flags.Changed("video") {
		opts.Video = &flagVideo
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	// A video call needs the microphone as well.
	if cfg.Video {
		cfg.Media = true
	}
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/warpchat/config.yaml)")
	pf.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	pf.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	pf.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	pf.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	pf.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	pf.StringVar(&flagPoolsFile, "pools-file", "", "Announce endpoint list")
	pf.StringVar(&flagSwarm, "swarm", "", "Swarm to look for strangers in")
	pf.StringVarP(&flagDownloadDir, "dir", "d", "", "Where received files and chat logs go")
	pf.BoolVarP(&flagMedia, "media", "m", false, "Turn the microphone on when a session starts")
	pf.BoolVar(&flagVideo, "video", false, "Turn the camera on as well")
}
