package session

import (
	"context"
	"errors"

	"github.com/BioHazard786/Warpchat/internal/callsignal"
	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/protocol"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	"github.com/BioHazard786/Warpchat/internal/transport"
	pion "github.com/pion/webrtc/v4"
)

type eventKind int

const (
	evState eventKind = iota
	evMessage
	evChannelOpen
	evChannelClose
	evTrack
	evOpened
	evScreenEnded
)

// event is something a transport or a track reported for session id.
type event struct {
	id   uint64
	kind eventKind

	state   transport.State
	payload []byte
	isText  bool
	track   *pion.TrackRemote
	channel protocol.Channel
	err     error
}

// post queues ev for the loop. After Close it is dropped.
func (s *Supervisor) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// handlers tags every transport callback with the session it belongs to.
func (s *Supervisor) handlers(id uint64) transport.Handlers {
	return transport.Handlers{
		OnStateChange: func(st transport.State) {
			s.post(event{id: id, kind: evState, state: st})
		},
		OnMessage: func(payload []byte, isText bool) {
			s.post(event{id: id, kind: evMessage, payload: payload, isText: isText})
		},
		OnChannelOpen: func() {
			s.post(event{id: id, kind: evChannelOpen})
		},
		OnChannelClose: func() {
			s.post(event{id: id, kind: evChannelClose})
		},
		OnTrack: func(track *pion.TrackRemote) {
			s.post(event{id: id, kind: evTrack, track: track})
		},
	}
}

func (s *Supervisor) handle(ev event) {
	sess := s.sess
	if sess == nil || sess.ID != ev.id {
		s.logger.Debug("dropping event from an old session", "session", ev.id, "kind", ev.kind)
		return
	}

	switch ev.kind {
	case evState:
		switch {
		case ev.state == transport.StateConnecting && sess.State == Matching:
			s.setState(Connecting)
		case ev.state.Lost():
			s.disconnected(ev.state.String())
		}

	case evChannelOpen:
		s.logger.Debug("channel open", "session", sess.ID)

	case evChannelClose:
		s.disconnected("channel closed")

	case evOpened:
		if ev.err != nil {
			s.closeAfter(ev.err)
			return
		}
		sess.writer = protocol.NewWriter(ev.channel)
		sess.notifier = callsignal.NewNotifier(sess.writer)
		s.setState(Connected)

		// A matched peer only exists now, so its media goes on late.
		if sess.Mode == ModeMatchmaking {
			s.attachInitial(context.Background(), sess)
		}

	case evMessage:
		s.receive(sess, ev.payload, ev.isText)

	case evTrack:
		s.listener.RemoteTrack(ev.track)

	case evScreenEnded:
		if !sess.negotiator.Sharing() {
			return
		}
		err := sess.negotiator.StopScreenShare()
		if sess.notifier != nil {
			err = errors.Join(err, sess.notifier.ScreenShareToggled(false))
		}
		if err != nil {
			s.listener.Error(err)
		}
	}
}

// disconnected handles a terminal transport report exactly like Leave.
func (s *Supervisor) disconnected(reason string) {
	s.logger.Info("peer disconnected", "reason", reason)
	s.setState(Disconnected)
	s.closeAfter(failure.WrapDetails("session", failure.ErrPeerDisconnected, reason))
}

// receive dispatches one inbound payload.
func (s *Supervisor) receive(sess *Session, payload []byte, isText bool) {
	switch msg := protocol.Parse(payload, isText).(type) {
	case protocol.PlainText:
		s.stats.MessagesReceived++
		s.listener.ChatReceived(msg.Text)

	case protocol.Control:
		ev, err := callsignal.Route(msg)
		if err != nil {
			s.logger.Warn("dropping control message", "action", msg.Action, "error", err)
			return
		}
		s.listener.CallEvent(ev)

	case protocol.FileMetadata:
		// One direction at a time; our own send wins.
		if sess.direction == transfer.DirectionSending {
			s.logger.Warn("peer offered a file during our send, ignoring", "file", msg.Name)
			return
		}
		sess.receiver.HandleMetadata(msg)
		sess.direction = transfer.DirectionReceiving
		s.listener.TransferProgress(transfer.DirectionReceiving, msg.Name, 0)

	case protocol.Chunk:
		if err := sess.receiver.HandleChunk(msg.Data); err != nil {
			if errors.Is(err, transfer.ErrUnexpectedChunk) {
				s.logger.Warn("dropping chunk outside a receive", "bytes", len(msg.Data))
				return
			}
			sess.direction = transfer.DirectionNone
			s.listener.Error(err)
		}

	case protocol.Malformed:
		s.logger.Warn("dropping malformed frame", "type", msg.Type, "reason", msg.Reason)

	case protocol.FileComplete:
		artifact, ok := sess.receiver.HandleComplete()
		if !ok {
			return
		}
		sess.direction = transfer.DirectionNone
		s.stats.FilesReceived++
		s.stats.BytesReceived += int64(len(artifact.Data))
		s.listener.FileReceived(artifact)
	}
}
