package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultSTUN       = "stun:stun.stunprotocol.org:3478"
	DefaultSwarmID    = "strangerchatroom00000001"
	DefaultDownload   = "."
	DefaultICEGather  = 10 * time.Second
	DefaultConnect    = 30 * time.Second
	DefaultMatch      = 2 * time.Minute
	DefaultAnswerWait = 10 * time.Minute
	configDirName     = "warpchat"
	poolsFileName     = "pools.txt"
	configFileName    = "config.yaml"
	peerIDPrefix      = "p-"
	peerIDRandomChars = 9
)

// Config holds application configuration
type Config struct {
	// ICE servers for WebRTC
	STUNServer string `mapstructure:"stun_server"`
	TURNServer string `mapstructure:"turn_server"`
	TURNUser   string `mapstructure:"turn_username"`
	TURNPass   string `mapstructure:"turn_password"`
	ForceRelay bool   `mapstructure:"force_relay"`

	// Matchmaking
	PoolsFile   string `mapstructure:"pools_file"`
	SwarmID     string `mapstructure:"swarm_id"`
	Matchmaking bool   `mapstructure:"matchmaking"`
	Pools       []string
	PeerID      string

	// Media attached when a session starts
	Media bool `mapstructure:"media"`
	Video bool `mapstructure:"video"`

	DownloadDir string `mapstructure:"download_dir"`

	ICEGatherTimeout time.Duration `mapstructure:"ice_gather_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	MatchTimeout     time.Duration `mapstructure:"match_timeout"`

	// AnswerWaitTimeout bounds how long an answerer waits for the other
	// side to paste the answer. Zero waits forever.
	AnswerWaitTimeout time.Duration `mapstructure:"answer_wait_timeout"`
}

// Options for loading config with CLI flag overrides. Empty strings and nil
// pointers leave the lower layers in place.
type Options struct {
	ConfigFile  string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  *bool
	PoolsFile   string
	SwarmID     string
	DownloadDir string
	Media       *bool
	Video       *bool
}

var envKeys = map[string]string{
	"stun_server":         "STUN_SERVER",
	"turn_server":         "TURN_SERVER",
	"turn_username":       "TURN_USERNAME",
	"turn_password":       "TURN_PASSWORD",
	"force_relay":         "WARPCHAT_FORCE_RELAY",
	"pools_file":          "WARPCHAT_POOLS_FILE",
	"swarm_id":            "WARPCHAT_SWARM",
	"matchmaking":         "WARPCHAT_MATCHMAKING",
	"media":               "WARPCHAT_MEDIA",
	"video":               "WARPCHAT_VIDEO",
	"download_dir":        "WARPCHAT_DOWNLOAD_DIR",
	"ice_gather_timeout":  "WARPCHAT_ICE_GATHER_TIMEOUT",
	"connect_timeout":     "WARPCHAT_CONNECT_TIMEOUT",
	"match_timeout":       "WARPCHAT_MATCH_TIMEOUT",
	"answer_wait_timeout": "WARPCHAT_ANSWER_WAIT_TIMEOUT",
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Config file ($XDG_CONFIG_HOME/warpchat/config.yaml or WARPCHAT_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("stun_server", DefaultSTUN)
	v.SetDefault("turn_server", "")
	v.SetDefault("turn_username", "")
	v.SetDefault("turn_password", "")
	v.SetDefault("force_relay", false)
	v.SetDefault("pools_file", defaultPoolsFile())
	v.SetDefault("swarm_id", DefaultSwarmID)
	v.SetDefault("matchmaking", true)
	v.SetDefault("media", false)
	v.SetDefault("video", false)
	v.SetDefault("download_dir", DefaultDownload)
	v.SetDefault("ice_gather_timeout", DefaultICEGather)
	v.SetDefault("connect_timeout", DefaultConnect)
	v.SetDefault("match_timeout", DefaultMatch)
	v.SetDefault("answer_wait_timeout", DefaultAnswerWait)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	configFile := opts.ConfigFile
	explicit := configFile != ""
	if !explicit {
		configFile = os.Getenv("WARPCHAT_CONFIG")
		explicit = configFile != ""
	}
	if !explicit {
		configFile = filepath.Join(configDir(), configFileName)
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	setString(v, "stun_server", opts.STUNServer)
	setString(v, "turn_server", opts.TURNServer)
	setString(v, "turn_username", opts.TURNUser)
	setString(v, "turn_password", opts.TURNPass)
	setString(v, "pools_file", opts.PoolsFile)
	setString(v, "swarm_id", opts.SwarmID)
	setString(v, "download_dir", opts.DownloadDir)
	setBool(v, "force_relay", opts.ForceRelay)
	setBool(v, "media", opts.Media)
	setBool(v, "video", opts.Video)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	pools, err := LoadPools(cfg.PoolsFile)
	if err != nil {
		return nil, err
	}
	cfg.Pools = pools
	cfg.PeerID = NewPeerID()

	return &cfg, nil
}

// NewPeerID returns a short random peer identifier such as "p-4f9c2a1b7".
func NewPeerID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return peerIDPrefix + id[:peerIDRandomChars]
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return strings.Split(c.STUNServer, ",")
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func setString(v *viper.Viper, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setBool(v *viper.Viper, key string, value *bool) {
	if value != nil {
		v.Set(key, *value)
	}
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, configDirName)
}

func defaultPoolsFile() string {
	return filepath.Join(configDir(), poolsFileName)
}
