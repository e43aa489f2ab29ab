package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Warpchat/internal/utils"
)

type Speaker int

const (
	SpeakerMe Speaker = iota
	SpeakerStranger
)

func (s Speaker) String() string {
	if s == SpeakerMe {
		return "Me"
	}
	return "Stranger"
}

type ChatLine struct {
	From Speaker
	Text string
	At   time.Time
}

// ChatLog keeps the messages of the current conversation. It is cleared
// whenever a new session starts.
type ChatLog struct {
	mu    sync.Mutex
	lines []ChatLine
}

func (l *ChatLog) Add(from Speaker, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, ChatLine{From: from, Text: text, At: time.Now()})
}

func (l *ChatLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = nil
}

func (l *ChatLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Export writes one "Me: ..." or "Stranger: ..." line per message.
// Newlines inside a message are flattened.
func (l *ChatLog) Export(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		text := strings.ReplaceAll(line.Text, "\n", " ")
		if _, err := fmt.Fprintf(w, "%s: %s\n", line.From, text); err != nil {
			return err
		}
	}
	return nil
}

// Save exports the log to path, or to a timestamped file in dir when path
// is empty. It never overwrites and returns the path written.
func (l *ChatLog) Save(path, dir string) (string, error) {
	if path == "" {
		path = filepath.Join(dir, "warpchat-"+time.Now().Format("20060102-150405")+".txt")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	path = utils.GetUniqueFilename(path)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := l.Export(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
