package ui

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArg     = errors.New("missing argument")
)

// CommandKind is one of the chat screen's slash commands.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdSend
	CmdCall
	CmdEnd
	CmdMute
	CmdCamera
	CmdScreen
	CmdAccept
	CmdNext
	CmdLeave
	CmdSave
	CmdHelp
	CmdQuit
)

// Command is a parsed input line. Plain chat text has Kind CmdNone and the
// text in Arg.
type Command struct {
	Kind  CommandKind
	Arg   string
	Video bool
}

var commandNames = map[string]CommandKind{
	"send":   CmdSend,
	"call":   CmdCall,
	"end":    CmdEnd,
	"mute":   CmdMute,
	"cam":    CmdCamera,
	"screen": CmdScreen,
	"accept": CmdAccept,
	"next":   CmdNext,
	"leave":  CmdLeave,
	"save":   CmdSave,
	"help":   CmdHelp,
	"quit":   CmdQuit,
	"exit":   CmdQuit,
}

const HelpText = `/send <path>         send a file or folder
/call voice|video    start a call
/end                 end the call
/mute  /cam  /screen toggle microphone, camera, screen share
/accept <answer>     apply a pasted answer after /next in direct mode
/next                leave and find someone new
/leave               leave the current session
/save [path]         export the chat log
/quit                exit`

// ParseCommand splits an input line. A line starting with "//" sends a
// literal slash.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return Command{Kind: CmdNone, Arg: strings.TrimPrefix(line, "/")}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	kind, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return Command{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}

	cmd := Command{Kind: kind, Arg: arg}
	switch kind {
	case CmdSend, CmdAccept:
		if arg == "" {
			return Command{}, fmt.Errorf("%w: /%s needs a value", ErrMissingArg, name)
		}
	case CmdCall:
		switch strings.ToLower(arg) {
		case "", "voice", "audio":
		case "video":
			cmd.Video = true
		default:
			return Command{}, fmt.Errorf("/call takes voice or video, not %q", arg)
		}
	}
	return cmd, nil
}
