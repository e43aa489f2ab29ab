package protocol

// Message types carried in the "type" field of JSON text frames.
const (
	TypeControl      = "control"
	TypeFileMetadata = "file-metadata"
	TypeFileComplete = "file-complete"
)

// DefaultMimeType is used when a file's type cannot be determined.
const DefaultMimeType = "application/octet-stream"

// Action names a call-control signal.
type Action string

const (
	ActionVoiceCallStart    Action = "voice-call-start"
	ActionVideoCallStart    Action = "video-call-start"
	ActionCallEnd           Action = "call-end"
	ActionMuteToggle        Action = "mute-toggle"
	ActionCameraToggle      Action = "camera-toggle"
	ActionScreenShareToggle Action = "screen-share-toggle"
)

// Kind tells the parsed variants apart.
type Kind int

const (
	KindPlainText Kind = iota
	KindControl
	KindFileMetadata
	KindFileComplete
	KindChunk
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindFileMetadata:
		return "file-metadata"
	case KindFileComplete:
		return "file-complete"
	case KindChunk:
		return "chunk"
	case KindMalformed:
		return "malformed"
	default:
		return "plain-text"
	}
}

// Message is one parsed inbound frame.
type Message interface {
	Kind() Kind
}

type PlainText struct {
	Text string
}

// Control is a call-control signal. Only the payload field that belongs to
// Action is set.
type Control struct {
	Action    Action
	Muted     *bool
	CameraOff *bool
	Sharing   *bool
}

type FileMetadata struct {
	Name     string
	Size     int64
	MimeType string
}

type FileComplete struct{}

// Chunk is a raw binary slice of a file in transit.
type Chunk struct {
	Data []byte
}

// Malformed is a typed frame whose fields break the protocol. It is never
// acted on.
type Malformed struct {
	Type   string
	Reason string
}

func (PlainText) Kind() Kind    { return KindPlainText }
func (Control) Kind() Kind      { return KindControl }
func (FileMetadata) Kind() Kind { return KindFileMetadata }
func (FileComplete) Kind() Kind { return KindFileComplete }
func (Chunk) Kind() Kind        { return KindChunk }
func (Malformed) Kind() Kind    { return KindMalformed }

// Known reports whether the action is one of the enumerated call signals.
func (a Action) Known() bool {
	switch a {
	case ActionVoiceCallStart, ActionVideoCallStart, ActionCallEnd,
		ActionMuteToggle, ActionCameraToggle, ActionScreenShareToggle:
		return true
	}
	return false
}

func NewMuteToggle(muted bool) Control {
	return Control{Action: ActionMuteToggle, Muted: &muted}
}

func NewCameraToggle(cameraOff bool) Control {
	return Control{Action: ActionCameraToggle, CameraOff: &cameraOff}
}

func NewScreenShareToggle(sharing bool) Control {
	return Control{Action: ActionScreenShareToggle, Sharing: &sharing}
}
