package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/Warpchat/internal/failure"
	pion "github.com/pion/webrtc/v4"
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrWrongSDPType     = errors.New("unexpected description type")
)

type wireDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// EncodeDescription serializes a session description as the JSON text that
// is handed to the user for manual exchange.
func EncodeDescription(desc *pion.SessionDescription) (string, error) {
	if desc == nil {
		return "", failure.Wrap("encode description", failure.ErrSignaling, ErrEmptyDescription)
	}
	b, err := json.Marshal(wireDescription{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return "", failure.Wrap("encode description", failure.ErrSignaling, err)
	}
	return string(b), nil
}

// DecodeDescription parses manually exchanged text and checks that it is a
// well-formed description of the wanted type.
func DecodeDescription(text string, want pion.SDPType) (pion.SessionDescription, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return pion.SessionDescription{}, failure.Wrap("decode description", failure.ErrSignalingParse, ErrEmptyDescription)
	}

	var wire wireDescription
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return pion.SessionDescription{}, failure.Wrap("decode description", failure.ErrSignalingParse, err)
	}

	sdpType := pion.NewSDPType(wire.Type)
	if sdpType != want {
		return pion.SessionDescription{}, failure.Wrap("decode description", failure.ErrSignalingParse,
			fmt.Errorf("%w: got %q, want %q", ErrWrongSDPType, wire.Type, want.String()))
	}

	if strings.TrimSpace(wire.SDP) == "" {
		return pion.SessionDescription{}, failure.Wrap("decode description", failure.ErrSignalingParse, ErrEmptyDescription)
	}

	desc := pion.SessionDescription{Type: sdpType, SDP: wire.SDP}
	if _, err := desc.Unmarshal(); err != nil {
		return pion.SessionDescription{}, failure.Wrap("decode description", failure.ErrSignalingParse, err)
	}
	return desc, nil
}

// WaitForGathering blocks until ICE gathering finishes, then returns the
// final local description with every candidate inlined.
func WaitForGathering(ctx context.Context, pc *pion.PeerConnection, gatherComplete <-chan struct{}, timeout time.Duration) (*pion.SessionDescription, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-gatherComplete:
		return pc.LocalDescription(), nil
	case <-timer.C:
		return nil, failure.WrapDetails("gather candidates", failure.ErrTimeout, timeout.String())
	case <-ctx.Done():
		return nil, failure.Wrap("gather candidates", failure.ErrSignaling, ctx.Err())
	}
}

// CreateOffer sets a fresh offer as the local description and waits for
// gathering to complete.
func CreateOffer(ctx context.Context, pc *pion.PeerConnection, timeout time.Duration) (*pion.SessionDescription, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, failure.Wrap("create offer", failure.ErrSignaling, err)
	}

	gatherComplete := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, failure.Wrap("set local description", failure.ErrSignaling, err)
	}

	return WaitForGathering(ctx, pc, gatherComplete, timeout)
}

// CreateAnswer applies a remote offer, answers it and waits for gathering
// to complete.
func CreateAnswer(ctx context.Context, pc *pion.PeerConnection, offer pion.SessionDescription, timeout time.Duration) (*pion.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, failure.Wrap("set remote description", failure.ErrSignalingParse, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, failure.Wrap("create answer", failure.ErrSignaling, err)
	}

	gatherComplete := pion.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, failure.Wrap("set local description", failure.ErrSignaling, err)
	}

	return WaitForGathering(ctx, pc, gatherComplete, timeout)
}
