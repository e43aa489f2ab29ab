package rtc

import (
	"log/slog"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/utils"
	pion "github.com/pion/webrtc/v4"
)

// ChannelLabel is the label of the one data channel a session uses.
const ChannelLabel = "chat"

// ICEConfig selects the ICE servers and transport policy for new peer
// connections. The zero value gathers host candidates only.
type ICEConfig struct {
	Servers []pion.ICEServer
	Relay   bool
}

// ICEFromConfig builds the ICE setup from STUN/TURN settings. Relay is
// forced when TURN is available and either the user asked for it or the
// host looks like it sits behind a VPN or CGNAT.
func ICEFromConfig(cfg *config.Config, logger *slog.Logger) ICEConfig {
	var ice ICEConfig
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		ice.Servers = append(ice.Servers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers == nil {
		return ice
	}

	username, password := cfg.GetTURNCredentials()
	ice.Servers = append(ice.Servers, pion.ICEServer{
		URLs:       turnServers,
		Username:   username,
		Credential: password,
	})

	ice.Relay = cfg.ForceRelay
	if !ice.Relay {
		if hint, iface := utils.RelayHint(); hint {
			logger.Info("forcing TURN relay", "interface", iface)
			ice.Relay = true
		}
	}
	return ice
}

func NewPeerConnection(ice ICEConfig) (*pion.PeerConnection, error) {
	policy := pion.ICETransportPolicyAll
	if ice.Relay {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.NewPeerConnection(pion.Configuration{
		ICEServers:         ice.Servers,
		ICETransportPolicy: policy,
	})
}

// CreateDataChannel opens the reliable, ordered chat channel.
func CreateDataChannel(pc *pion.PeerConnection) (*pion.DataChannel, error) {
	ordered := true
	return pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{
		Ordered: &ordered,
	})
}
