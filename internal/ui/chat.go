package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BioHazard786/Warpchat/internal/failure"
	"github.com/BioHazard786/Warpchat/internal/session"
	"github.com/BioHazard786/Warpchat/internal/transfer"
	"github.com/BioHazard786/Warpchat/internal/utils"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	pion "github.com/pion/webrtc/v4"
)

// Controller is what the chat screen drives. *session.Supervisor
// satisfies it.
type Controller interface {
	State() session.State
	SendText(text string) error
	SendFile(ctx context.Context, path string) error
	StartCall(ctx context.Context, video bool) error
	EndCall() error
	ToggleMute() (bool, error)
	ToggleCamera() (bool, error)
	ToggleScreenShare(ctx context.Context) (bool, error)
	AcceptAnswer(text string) error
	Next(ctx context.Context) error
	Leave() error
}

// Results of controller calls made off the update loop.
type (
	sentMsg struct {
		text string
		err  error
	}
	resultMsg struct {
		note string
		err  error
	}
	sendDoneMsg struct {
		name string
		err  error
	}
)

type transferView struct {
	dir     transfer.Direction
	name    string
	percent int
}

const footerHint = "/help for commands • pgup/pgdn to scroll • ctrl+c to quit"

// ChatModel is the chat screen: the conversation, a transfer bar and an
// input line.
type ChatModel struct {
	ctx         context.Context
	ctrl        Controller
	events      <-chan tea.Msg
	downloadDir string

	log   *ChatLog
	lines []string

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	progress progress.Model

	state    session.State
	transfer *transferView
	ready    bool
	width    int
	quitting bool
}

func NewChatModel(ctx context.Context, ctrl Controller, events <-chan tea.Msg, downloadDir string) *ChatModel {
	in := textinput.New()
	in.Placeholder = "Say something, or /help"
	in.Prompt = "› "
	in.CharLimit = 0
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ChatModel{
		ctx:         ctx,
		ctrl:        ctrl,
		events:      events,
		downloadDir: downloadDir,
		log:         &ChatLog{},
		input:       in,
		spinner:     s,
		progress: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		state: ctrl.State(),
		width: 80,
	}
}

// Log is the conversation of the current session.
func (m *ChatModel) Log() *ChatLog { return m.log }

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listen())
}

// listen waits for the next supervisor message.
func (m *ChatModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m, m.handleInput(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-4, 3)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - 4
		m.progress.Width = min(30, max(msg.Width-40, 10))
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		cmds = append(cmds, cmd)

	case stateMsg:
		m.onState(msg.state)
		cmds = append(cmds, m.listen())

	case descriptionMsg:
		m.system(fmt.Sprintf("%s Your %s, send it to the other side:", IconCopy, msg.sdpType))
		m.add(msg.text)
		if msg.sdpType == pion.SDPTypeOffer.String() && m.ctrl.State() == session.AwaitingRemote {
			m.system("Paste their answer with /accept <answer>")
		}
		cmds = append(cmds, m.listen())

	case chatMsg:
		m.log.Add(SpeakerStranger, msg.text)
		m.add(StrangerStyle.Render("Stranger: ") + msg.text)
		cmds = append(cmds, m.listen())

	case callMsg:
		m.system(IconCall + " " + msg.event.Describe())
		cmds = append(cmds, m.listen())

	case progressMsg:
		if m.transfer == nil || m.transfer.name != msg.name {
			verb := "Receiving"
			if msg.dir == transfer.DirectionSending {
				verb = "Sending"
			}
			m.system(fmt.Sprintf("%s %s", verb, msg.name))
		}
		m.transfer = &transferView{dir: msg.dir, name: msg.name, percent: msg.percent}
		cmds = append(cmds, m.progress.SetPercent(float64(msg.percent)/100), m.listen())

	case fileMsg:
		m.transfer = nil
		path, err := msg.artifact.Save(m.downloadDir)
		if err != nil {
			m.fail(err)
		} else {
			m.system(fmt.Sprintf("%s Received %s, saved to %s", IconReceive, msg.artifact.Name, path))
		}
		cmds = append(cmds, m.listen())

	case trackMsg:
		m.system(fmt.Sprintf("%s Stranger is sending %s", IconVideo, msg.kind))
		cmds = append(cmds, m.listen())

	case errorMsg:
		m.fail(msg.err)
		if errors.Is(msg.err, failure.ErrFileTransferAborted) {
			m.transfer = nil
		}
		cmds = append(cmds, m.listen())

	case sentMsg:
		if msg.err != nil {
			m.fail(msg.err)
			break
		}
		m.log.Add(SpeakerMe, msg.text)
		m.add(MeStyle.Render("Me: ") + msg.text)

	case sendDoneMsg:
		m.transfer = nil
		if msg.err != nil {
			m.fail(msg.err)
			break
		}
		m.system(fmt.Sprintf("%s Sent %s", IconSend, msg.name))

	case resultMsg:
		if msg.err != nil {
			m.fail(msg.err)
		} else if msg.note != "" {
			m.system(msg.note)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) onState(st session.State) {
	m.state = st
	switch st {
	case session.Offering, session.Matching:
		m.log.Reset()
		m.transfer = nil
		if st == session.Matching {
			m.system(IconWaiting + " Looking for a stranger...")
		}
	case session.Connected:
		m.system(IconPeer + " You're now chatting with a stranger. Say hi!")
	case session.Disconnected:
		m.system(IconConnect + " Stranger has disconnected.")
	case session.Idle:
		m.transfer = nil
		m.system("Session ended. /next to start another.")
	}
}

func (m *ChatModel) handleInput(line string) tea.Cmd {
	cmd, err := ParseCommand(line)
	if err != nil {
		m.fail(err)
		return nil
	}

	ctx := m.ctx
	switch cmd.Kind {
	case CmdNone:
		if strings.TrimSpace(cmd.Arg) == "" {
			return nil
		}
		text := cmd.Arg
		return func() tea.Msg {
			return sentMsg{text: text, err: m.ctrl.SendText(text)}
		}

	case CmdSend:
		path := cmd.Arg
		return func() tea.Msg {
			return sendDoneMsg{name: filepath.Base(path), err: m.ctrl.SendFile(ctx, path)}
		}

	case CmdCall:
		kind := "Voice"
		if cmd.Video {
			kind = "Video"
		}
		return m.run(kind+" call started", func() error {
			return m.ctrl.StartCall(ctx, cmd.Video)
		})

	case CmdEnd:
		return m.run("Call ended", m.ctrl.EndCall)

	case CmdMute:
		return func() tea.Msg {
			muted, err := m.ctrl.ToggleMute()
			return resultMsg{note: toggled(IconMuted+" Microphone", muted, "muted", "unmuted"), err: err}
		}

	case CmdCamera:
		return func() tea.Msg {
			off, err := m.ctrl.ToggleCamera()
			return resultMsg{note: toggled(IconVideo+" Camera", off, "off", "on"), err: err}
		}

	case CmdScreen:
		return func() tea.Msg {
			sharing, err := m.ctrl.ToggleScreenShare(ctx)
			return resultMsg{note: toggled(IconScreen+" Screen share", sharing, "started", "stopped"), err: err}
		}

	case CmdAccept:
		answer := cmd.Arg
		return m.run("Answer applied, connecting...", func() error {
			return m.ctrl.AcceptAnswer(answer)
		})

	case CmdNext:
		return m.run("", func() error { return m.ctrl.Next(ctx) })

	case CmdLeave:
		return m.run("", m.ctrl.Leave)

	case CmdSave:
		path, err := m.log.Save(cmd.Arg, m.downloadDir)
		if err != nil {
			m.fail(err)
			return nil
		}
		m.system(fmt.Sprintf("%s Chat saved to %s", IconSuccess, path))

	case CmdHelp:
		for _, l := range strings.Split(HelpText, "\n") {
			m.system(l)
		}

	case CmdQuit:
		m.quitting = true
		return tea.Quit
	}
	return nil
}

func (m *ChatModel) run(note string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{note: note, err: fn()}
	}
}

func toggled(what string, on bool, onWord, offWord string) string {
	if on {
		return what + " " + onWord
	}
	return what + " " + offWord
}

func (m *ChatModel) add(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *ChatModel) system(line string) {
	m.add(SystemStyle.Render(line))
}

func (m *ChatModel) fail(err error) {
	m.add(FormatError(err))
}

func (m *ChatModel) refresh() {
	if !m.ready {
		return
	}
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = wrap.Render(l)
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	m.viewport.GotoBottom()
}

func (m *ChatModel) busy() bool {
	switch m.state {
	case session.Offering, session.AwaitingRemote, session.Matching, session.Connecting:
		return true
	}
	return false
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return m.spinner.View() + " Starting..."
	}

	var b strings.Builder

	header := HeaderStyle.Render(IconChat+" Warpchat") + " " + StateBadge(m.state)
	if m.busy() {
		header += " " + m.spinner.View()
	}
	b.WriteString(header + "\n")
	b.WriteString(m.viewport.View() + "\n")

	if t := m.transfer; t != nil {
		icon := IconReceive
		if t.dir == transfer.DirectionSending {
			icon = IconSend
		}
		fmt.Fprintf(&b, "%s %s %s %3d%%\n", icon, lipgloss.NewStyle().Width(24).Render(utils.TruncateString(t.name, 22)), m.progress.View(), t.percent)
	} else {
		b.WriteString(FooterStyle.Render(footerHint) + "\n")
	}

	b.WriteString(m.input.View())
	return b.String()
}
