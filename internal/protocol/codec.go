package protocol

import (
	"encoding/json"
	"math"
)

// maxFileSize is the largest size a JSON number carries exactly.
const maxFileSize = 1<<53 - 1

// envelope is the union of every JSON text frame field.
type envelope struct {
	Type      string  `json:"type"`
	Action    Action  `json:"action,omitempty"`
	Muted     *bool   `json:"muted,omitempty"`
	CameraOff *bool   `json:"cameraOff,omitempty"`
	Sharing   *bool   `json:"sharing,omitempty"`
	Name      string  `json:"name,omitempty"`
	Size      float64 `json:"size,omitempty"`
	MimeType  string  `json:"mimeType,omitempty"`
}

type controlFrame struct {
	Type      string `json:"type"`
	Action    Action `json:"action"`
	Muted     *bool  `json:"muted,omitempty"`
	CameraOff *bool  `json:"cameraOff,omitempty"`
	Sharing   *bool  `json:"sharing,omitempty"`
}

type metadataFrame struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type completeFrame struct {
	Type string `json:"type"`
}

// Parse turns one inbound payload into exactly one Message. Text that is not
// a JSON object with a recognized type is plain text. Binary is always a chunk.
func Parse(payload []byte, isText bool) Message {
	if !isText {
		return Chunk{Data: payload}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return PlainText{Text: string(payload)}
	}

	switch env.Type {
	case TypeControl:
		return Control{
			Action:    env.Action,
			Muted:     env.Muted,
			CameraOff: env.CameraOff,
			Sharing:   env.Sharing,
		}
	case TypeFileMetadata:
		mime := env.MimeType
		if mime == "" {
			mime = DefaultMimeType
		}
		if env.Size < 0 || env.Size > maxFileSize || env.Size != math.Trunc(env.Size) {
			return Malformed{Type: env.Type, Reason: "size is not a whole number of bytes"}
		}
		return FileMetadata{Name: env.Name, Size: int64(env.Size), MimeType: mime}
	case TypeFileComplete:
		return FileComplete{}
	default:
		return PlainText{Text: string(payload)}
	}
}

func EncodeControl(c Control) ([]byte, error) {
	return json.Marshal(controlFrame{
		Type:      TypeControl,
		Action:    c.Action,
		Muted:     c.Muted,
		CameraOff: c.CameraOff,
		Sharing:   c.Sharing,
	})
}

func EncodeFileMetadata(m FileMetadata) ([]byte, error) {
	mime := m.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}
	return json.Marshal(metadataFrame{
		Type:     TypeFileMetadata,
		Name:     m.Name,
		Size:     m.Size,
		MimeType: mime,
	})
}

func EncodeFileComplete() ([]byte, error) {
	return json.Marshal(completeFrame{Type: TypeFileComplete})
}
