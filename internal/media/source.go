package media

import (
	"context"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/rtc"
)

// Source captures local media. Capture may block while the user is asked
// for consent and returns ErrMediaAccessDenied when a kind is refused.
type Source interface {
	Capture(ctx context.Context, kind rtc.MediaKind) (*rtc.LocalTrack, error)
}

// SampleSource hands out sample-fed tracks. Whatever produces encoded
// frames writes them with LocalTrack.WriteSample.
type SampleSource struct {
	StreamID string

	// Allowed restricts the kinds the user consented to. Nil allows all.
	Allowed map[rtc.MediaKind]bool
}

func (s *SampleSource) Capture(ctx context.Context, kind rtc.MediaKind) (*rtc.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.Wrap("capture "+kind.String(), failure.ErrMediaAccessDenied, err)
	}
	if s.Allowed != nil && !s.Allowed[kind] {
		return nil, failure.New("capture "+kind.String(), failure.ErrMediaAccessDenied)
	}

	streamID := s.StreamID
	if streamID == "" {
		streamID = "warpchat"
	}
	track, err := rtc.NewLocalTrack(kind, streamID)
	if err != nil {
		return nil, failure.Wrap("capture "+kind.String(), failure.ErrMediaAccessDenied, err)
	}
	return track, nil
}

// DenySource refuses every capture.
type DenySource struct{}

func (DenySource) Capture(_ context.Context, kind rtc.MediaKind) (*rtc.LocalTrack, error) {
	return nil, failure.New("capture "+kind.String(), failure.ErrMediaAccessDenied)
}
