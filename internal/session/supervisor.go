package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/files"
	"github.com/BioHazard786/Warpchat/internal/media"
	"github.com/BioHazard786/Warpchat/internal/rtc"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	"github.com/BioHazard786/Warpchat/internal/transport"
	pion "github.com/pion/webrtc/v4"
)

var ErrSupervisorClosed = errors.New("supervisor closed")

type Options struct {
	// Media attaches the microphone, and the camera when Video is set, as
	// soon as a session has a transport.
	Media bool
	Video bool

	// ConnectTimeout bounds the wait for the channel to open once the
	// offerer has applied the answer.
	ConnectTimeout time.Duration

	// AnswerTimeout bounds the answerer's wait, which includes the answer
	// being carried back by hand. Zero waits until Leave.
	AnswerTimeout time.Duration
}

// Supervisor owns the single active session. One loop goroutine applies
// every operation and transport event, so the session has one writer.
type Supervisor struct {
	factory  Factory
	source   media.Source
	listener Listener
	opts     Options
	logger   *slog.Logger

	ops    chan func()
	events chan event
	quit   chan struct{}
	done   chan struct{}

	quitOnce sync.Once
	closeErr error

	state atomic.Int32
	mode  atomic.Int32

	// Owned by the loop.
	sess   *Session
	lastID uint64
	stats  Stats

	sendWG sync.WaitGroup
}

func New(factory Factory, source media.Source, listener Listener, opts Options, logger *slog.Logger) *Supervisor {
	if listener == nil {
		listener = NopListener{}
	}
	s := &Supervisor{
		factory:  factory,
		source:   source,
		listener: listener,
		opts:     opts,
		logger:   logger.With("component", "supervisor"),
		ops:      make(chan func()),
		events:   make(chan event, 1024),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Supervisor) loop() {
	defer close(s.done)

	for {
		select {
		case op := <-s.ops:
			op()
		case ev := <-s.events:
			s.handle(ev)
		case <-s.quit:
			s.closeErr = s.teardown()
			s.setState(Closed)
			return
		}
	}
}

// do runs fn on the loop and returns its error.
func (s *Supervisor) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.ops <- func() { reply <- fn() }:
	case <-s.done:
		return failure.Wrap("supervisor", failure.ErrInvalidState, ErrSupervisorClosed)
	}
	return <-reply
}

// Close tears down the session and stops the loop. Later calls return the
// first result.
func (s *Supervisor) Close() error {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
	return s.closeErr
}

func (s *Supervisor) State() State { return State(s.state.Load()) }
func (s *Supervisor) Mode() Mode   { return Mode(s.mode.Load()) }

// Stats returns the running totals.
func (s *Supervisor) Stats() Stats {
	var st Stats
	if err := s.do(func() error { st = s.stats; return nil }); err != nil {
		return s.stats
	}
	return st
}

// StartDirect replaces any session with a direct one and returns the offer
// text once ICE gathering completes.
func (s *Supervisor) StartDirect(ctx context.Context) (string, error) {
	var sess *Session
	err := s.do(func() error {
		if err := s.teardown(); err != nil {
			s.logger.Warn("teardown before offer", "error", err)
		}
		var err error
		sess, err = s.installDirect()
		if err != nil {
			return err
		}
		s.setState(Offering)
		s.attachInitial(ctx, sess)
		return nil
	})
	if err != nil {
		return "", err
	}

	text, offerErr := sess.direct.Offer(ctx)

	err = s.do(func() error {
		if !s.current(sess.ID) {
			if offerErr != nil {
				return offerErr
			}
			return failure.WrapDetails("start direct", failure.ErrInvalidState, "session was replaced")
		}
		if offerErr != nil {
			s.closeAfter(offerErr)
			return offerErr
		}
		s.setState(AwaitingRemote)
		s.listener.LocalDescription(pion.SDPTypeOffer.String(), text)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// AcceptAnswer applies the pasted answer to the offer in flight.
func (s *Supervisor) AcceptAnswer(text string) error {
	return s.do(func() error {
		sess := s.sess
		if sess == nil || sess.direct == nil || sess.State != AwaitingRemote {
			return failure.WrapDetails("accept answer", failure.ErrInvalidState, "no offer in flight")
		}
		if err := sess.direct.Accept(text); err != nil {
			return err
		}
		s.setState(Connecting)
		s.connect(sess, s.opts.ConnectTimeout)
		return nil
	})
}

// GenerateAnswer answers a pasted offer in a fresh direct session. A
// malformed offer is rejected before the current session is touched.
func (s *Supervisor) GenerateAnswer(ctx context.Context, offer string) (string, error) {
	if _, err := rtc.DecodeDescription(offer, pion.SDPTypeOffer); err != nil {
		return "", err
	}

	var sess *Session
	err := s.do(func() error {
		if err := s.teardown(); err != nil {
			s.logger.Warn("teardown before answer", "error", err)
		}
		var err error
		sess, err = s.installDirect()
		if err != nil {
			return err
		}
		s.setState(Offering)
		s.attachInitial(ctx, sess)
		return nil
	})
	if err != nil {
		return "", err
	}

	text, answerErr := sess.direct.Answer(ctx, offer)

	err = s.do(func() error {
		if !s.current(sess.ID) {
			if answerErr != nil {
				return answerErr
			}
			return failure.WrapDetails("generate answer", failure.ErrInvalidState, "session was replaced")
		}
		if answerErr != nil {
			s.closeAfter(answerErr)
			return answerErr
		}
		s.setState(Connecting)
		s.listener.LocalDescription(pion.SDPTypeAnswer.String(), text)
		s.connect(sess, s.opts.AnswerTimeout)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// StartMatchmaking replaces any session with one that waits for a tracker
// match. When matchmaking is unavailable nothing changes.
func (s *Supervisor) StartMatchmaking(ctx context.Context) error {
	return s.do(func() error {
		if res := s.factory.Resolve(); !res.Available {
			return failure.WrapDetails("start matchmaking", failure.ErrTransportUnavailable, res.Reason)
		}

		if err := s.teardown(); err != nil {
			s.logger.Warn("teardown before matchmaking", "error", err)
		}

		id := s.nextID()
		t, err := s.factory.NewMatchmaking(s.handlers(id))
		if err != nil {
			return err
		}
		sess := s.install(id, ModeMatchmaking, t)
		s.setState(Matching)
		s.connect(sess, 0)
		return nil
	})
}

// Leave tears the session down. It is safe at any time and a no-op
// without a session.
func (s *Supervisor) Leave() error {
	return s.do(s.teardown)
}

// Next leaves and starts over in the last used mode.
func (s *Supervisor) Next(ctx context.Context) error {
	mode := s.Mode()
	if err := s.Leave(); err != nil {
		s.logger.Warn("leave before next", "error", err)
	}

	if mode == ModeMatchmaking {
		return s.StartMatchmaking(ctx)
	}
	_, err := s.StartDirect(ctx)
	return err
}

func (s *Supervisor) SendText(text string) error {
	return s.do(func() error {
		sess, err := s.connected("send text")
		if err != nil {
			return err
		}
		if err := sess.writer.SendText(text); err != nil {
			return err
		}
		s.stats.MessagesSent++
		return nil
	})
}

// SendFile streams path to the peer and returns when the transfer ends.
// Directories are zipped first. Leave cancels a running send.
func (s *Supervisor) SendFile(ctx context.Context, path string) error {
	info, err := files.Prepare(path)
	if err != nil {
		return transfer.NewFileError("prepare file", path, err)
	}
	defer info.Cleanup()

	f, err := os.Open(info.Path)
	if err != nil {
		return transfer.NewFileError("open file", info.Name, err)
	}
	defer f.Close()

	var (
		id      uint64
		sendCtx context.Context
		sender  *transfer.Sender
	)
	err = s.do(func() error {
		sess, err := s.connected("send file")
		if err != nil {
			return err
		}
		if sess.direction != transfer.DirectionNone {
			return failure.WrapDetails("send file", failure.ErrInvalidState, "a transfer is already running")
		}

		var cancel context.CancelFunc
		sendCtx, cancel = context.WithCancel(ctx)
		sess.cancelSend = cancel
		sess.direction = transfer.DirectionSending
		s.sendWG.Add(1)

		id = sess.ID
		sender = transfer.NewSender(sess.writer, s.logger, func(percent int) {
			s.listener.TransferProgress(transfer.DirectionSending, info.Name, percent)
		})
		return nil
	})
	if err != nil {
		return err
	}

	sendErr := sender.Send(sendCtx, transfer.File{
		Name:     info.Name,
		MimeType: info.Type,
		Size:     info.Size,
		Reader:   f,
	})
	s.sendWG.Done()

	s.do(func() error {
		if s.current(id) {
			s.sess.cancelSend()
			s.sess.cancelSend = nil
			s.sess.direction = transfer.DirectionNone
		}
		if sendErr == nil {
			s.stats.FilesSent++
			s.stats.BytesSent += info.Size
		}
		return nil
	})
	return sendErr
}

// StartCall puts the microphone, and the camera for video calls, on the
// wire and tells the peer.
func (s *Supervisor) StartCall(ctx context.Context, video bool) error {
	return s.do(func() error {
		sess, err := s.connected("start call")
		if err != nil {
			return err
		}
		mediaErr := sess.negotiator.StartCall(ctx, video)
		if !sess.negotiator.InCall() {
			return mediaErr
		}
		return errors.Join(mediaErr, sess.notifier.CallStarted(video))
	})
}

func (s *Supervisor) EndCall() error {
	return s.do(func() error {
		sess, err := s.connected("end call")
		if err != nil {
			return err
		}
		return errors.Join(sess.negotiator.EndCall(), sess.notifier.CallEnded())
	})
}

// ToggleMute flips the microphone and returns whether it is now muted.
func (s *Supervisor) ToggleMute() (bool, error) {
	var muted bool
	err := s.do(func() error {
		sess, err := s.connected("toggle mute")
		if err != nil {
			return err
		}
		if muted, err = sess.negotiator.ToggleMute(); err != nil {
			return err
		}
		return sess.notifier.MuteToggled(muted)
	})
	return muted, err
}

// ToggleCamera flips the camera and returns whether it is now off.
func (s *Supervisor) ToggleCamera() (bool, error) {
	var off bool
	err := s.do(func() error {
		sess, err := s.connected("toggle camera")
		if err != nil {
			return err
		}
		if off, err = sess.negotiator.ToggleCamera(); err != nil {
			return err
		}
		return sess.notifier.CameraToggled(off)
	})
	return off, err
}

// ToggleScreenShare starts or stops sharing and returns whether a share is
// now running.
func (s *Supervisor) ToggleScreenShare(ctx context.Context) (bool, error) {
	var sharing bool
	err := s.do(func() error {
		sess, err := s.connected("toggle screen share")
		if err != nil {
			return err
		}
		was := sess.negotiator.Sharing()
		if was {
			err = sess.negotiator.StopScreenShare()
		} else {
			err = sess.negotiator.StartScreenShare(ctx)
		}
		sharing = sess.negotiator.Sharing()
		if sharing == was {
			return err
		}
		return errors.Join(err, sess.notifier.ScreenShareToggled(sharing))
	})
	return sharing, err
}

func (s *Supervisor) installDirect() (*Session, error) {
	id := s.nextID()
	t, err := s.factory.NewDirect(s.handlers(id))
	if err != nil {
		return nil, err
	}
	sess := s.install(id, ModeDirect, t)
	sess.direct = t
	return sess, nil
}

func (s *Supervisor) install(id uint64, mode Mode, t transport.Transport) *Session {
	sess := &Session{ID: id, Mode: mode, transport: t}
	sess.receiver = transfer.NewReceiver(s.logger, func(percent int) {
		s.listener.TransferProgress(transfer.DirectionReceiving, sess.receiver.Metadata().Name, percent)
	})
	sess.negotiator = media.NewNegotiator(t, s.source, s.logger, func() {
		s.post(event{id: id, kind: evScreenEnded})
	})

	s.sess = sess
	s.mode.Store(int32(mode))
	s.stats.Sessions++
	s.logger.Debug("session installed", "session", id, "mode", mode.String())
	return sess
}

// attachInitial captures the configured media. Refused devices are
// reported and the session continues without them.
func (s *Supervisor) attachInitial(ctx context.Context, sess *Session) {
	if !s.opts.Media {
		return
	}
	if err := sess.negotiator.AttachInitial(ctx, true, s.opts.Video); err != nil {
		s.listener.Error(err)
	}
}

// connect waits for the channel off the loop and reports back as an event.
func (s *Supervisor) connect(sess *Session, timeout time.Duration) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	sess.cancelOpen = cancel

	t, id := sess.transport, sess.ID
	go func() {
		ch, err := t.Open(ctx)
		s.post(event{id: id, kind: evOpened, channel: ch, err: err})
	}()
}

func (s *Supervisor) connected(op string) (*Session, error) {
	if s.sess == nil || s.sess.State != Connected || s.sess.writer == nil {
		return nil, failure.WrapDetails(op, failure.ErrInvalidState, "not connected")
	}
	return s.sess, nil
}

func (s *Supervisor) current(id uint64) bool {
	return s.sess != nil && s.sess.ID == id
}

func (s *Supervisor) nextID() uint64 {
	s.lastID++
	return s.lastID
}

func (s *Supervisor) setState(st State) {
	if s.sess != nil {
		s.sess.State = st
	}
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	s.logger.Debug("state", "state", st.String())
	s.listener.StateChanged(st)
}

// closeAfter reports err and tears the session down.
func (s *Supervisor) closeAfter(err error) {
	s.listener.Error(err)
	if terr := s.teardown(); terr != nil {
		s.logger.Warn("teardown", "error", terr)
	}
}

// teardown releases the session in a fixed order: stop the send loop, drop
// any partial receive, release media, close the transport, reset state.
// Every step runs even when an earlier one fails.
func (s *Supervisor) teardown() error {
	sess := s.sess
	if sess == nil {
		return nil
	}

	var errs []error

	if sess.cancelSend != nil {
		sess.cancelSend()
	}
	s.sendWG.Wait()

	if name := sess.receiver.Metadata().Name; sess.receiver.Abort() {
		s.listener.Error(failure.WrapDetails("receive file", failure.ErrFileTransferAborted, name))
	}
	sess.direction = transfer.DirectionNone

	sess.negotiator.Release()

	if sess.cancelOpen != nil {
		sess.cancelOpen()
	}
	if sess.writer != nil {
		sess.writer.Close()
	}
	if err := sess.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s transport: %w", sess.transport.Kind(), err))
	}

	s.logger.Debug("session torn down", "session", sess.ID)
	s.sess = nil
	s.setState(Idle)
	return errors.Join(errs...)
}
