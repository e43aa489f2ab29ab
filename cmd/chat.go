package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/internal/config"
	"github.com/BioHazard786/Warpchat/internal/media"
	"github.com/BioHazard786/Warpchat/internal/session"
	"github.com/BioHazard786/Warpchat/internal/transport"
	"github.com/BioHazard786/Warpchat/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	pion "github.com/pion/webrtc/v4"
)

// chatContext is one running client: the supervisor and the bridge that
// feeds the chat screen.
type chatContext struct {
	Config     *config.Config
	Supervisor *session.Supervisor
	Bridge     *ui.Bridge
	started    time.Time
	closeOnce  sync.Once
}

// listener forwards to the chat screen and drains remote media, which the
// terminal cannot play.
type listener struct {
	*ui.Bridge
	logger *slog.Logger
}

func (l listener) RemoteTrack(track *pion.TrackRemote) {
	go func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				l.logger.Debug("remote track ended", "kind", track.Kind().String(), "error", err)
				return
			}
		}
	}()
	l.Bridge.RemoteTrack(track)
}

func newChatContext(cfg *config.Config) *chatContext {
	logger := slog.Default()
	bridge := ui.NewBridge()

	factory := transport.NewFactory(cfg, logger)
	sup := session.New(
		session.FromTransportFactory(factory),
		&media.SampleSource{},
		listener{Bridge: bridge, logger: logger},
		session.Options{
			Media:          cfg.Media,
			Video:          cfg.Video,
			ConnectTimeout: cfg.ConnectTimeout,
			AnswerTimeout:  cfg.AnswerWaitTimeout,
		},
		logger,
	)

	return &chatContext{
		Config:     cfg,
		Supervisor: sup,
		Bridge:     bridge,
		started:    time.Now(),
	}
}

// Close stops the screen's feed first so teardown callbacks never wait on
// a screen that is gone.
func (c *chatContext) Close() {
	c.closeOnce.Do(func() {
		c.Bridge.Close()
		if err := c.Supervisor.Close(); err != nil {
			ui.PrintWarning(err.Error())
		}
	})
}

// Run shows the chat screen until the user quits, then the summary.
func (c *chatContext) Run(ctx context.Context) error {
	model := ui.NewChatModel(ctx, c.Supervisor, c.Bridge.Messages(), c.Config.DownloadDir)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := program.Run()
	stats := c.Supervisor.Stats()
	c.Close()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat screen: %w", err)
	}

	fmt.Println()
	ui.RenderSummary(stats, time.Since(c.started))
	return nil
}

// readDescription reads one pasted offer or answer. Blank lines are
// skipped.
func readDescription(r *bufio.Reader, prompt string) (string, error) {
	for {
		fmt.Print(ui.TitleStyle.Render(prompt) + " ")
		line, err := r.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("no input: %w", err)
			}
			return "", err
		}
	}
}

var stdin = bufio.NewReader(os.Stdin)
