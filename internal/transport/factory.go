package transport

import (
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/dns"
	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	"github.com/BioHazard786/Warpchat/internal/signaling"
)

// Result says whether matchmaking can be used this run.
type Result struct {
	Available bool
	Reason    string
}

// Factory builds transports from the loaded configuration. Matchmaking
// availability is resolved once per process.
type Factory struct {
	cfg      *config.Config
	ice      rtc.ICEConfig
	resolver *dns.Resolver
	logger   *slog.Logger

	once   sync.Once
	result Result

	mu      sync.Mutex
	matches int
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:      cfg,
		ice:      rtc.ICEFromConfig(cfg, logger),
		resolver: dns.NewResolver(logger),
		logger:   logger,
	}
}

// Resolve decides matchmaking availability. Later calls return the first
// answer.
func (f *Factory) Resolve() Result {
	f.once.Do(func() {
		switch {
		case !f.cfg.Matchmaking:
			f.result = Result{Reason: "matchmaking is disabled"}
		case len(f.cfg.Pools) == 0:
			f.result = Result{Reason: "no announce endpoints configured"}
		default:
			f.result = Result{Available: true}
		}
		f.logger.Debug("matchmaking resolved", "available", f.result.Available, "reason", f.result.Reason)
	})
	return f.result
}

// Direct builds a manual offer/answer transport. It is always available.
func (f *Factory) Direct(h Handlers) (*DirectTransport, error) {
	return NewDirect(DirectConfig{
		ICE:           f.ice,
		GatherTimeout: f.cfg.ICEGatherTimeout,
	}, h, f.logger)
}

// Matchmaking builds a tracker-paired transport, or fails with
// ErrTransportUnavailable when Resolve said no.
func (f *Factory) Matchmaking(h Handlers) (*MatchmakingTransport, error) {
	if res := f.Resolve(); !res.Available {
		return nil, failure.WrapDetails("matchmaking", failure.ErrTransportUnavailable, res.Reason)
	}

	return NewMatchmaking(MatchmakingConfig{
		Discovery: signaling.DiscoveryConfig{
			SwarmID:   f.cfg.SwarmID,
			PeerID:    f.nextPeerID(),
			Endpoints: f.cfg.Pools,
		},
		ICE:           f.ice,
		GatherTimeout: f.cfg.ICEGatherTimeout,
		MatchTimeout:  f.cfg.MatchTimeout,
	}, f.resolver, h, f.logger), nil
}

// nextPeerID uses the configured id first and a fresh one afterwards, so a
// quick "next" never collides with our own not-yet-processed leave.
func (f *Factory) nextPeerID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches++
	if f.matches == 1 && f.cfg.PeerID != "" {
		return f.cfg.PeerID
	}
	return config.NewPeerID()
}
