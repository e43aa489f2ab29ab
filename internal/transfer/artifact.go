package transfer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BioHazard786/Warpchat/internal/utils"
)

const fallbackName = "download.bin"

// Artifact is a completed inbound file.
type Artifact struct {
	Name     string
	MimeType string
	Data     []byte
}

// Save writes the artifact into dir under a name that does not clash with
// existing files and returns the path written.
func (a Artifact) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewFileError("create download dir", dir, err)
	}

	path := utils.GetUniqueFilename(filepath.Join(dir, SafeName(a.Name)))
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", NewFileError("write file", path, err)
	}
	return path, nil
}

// SafeName strips any directory components a peer put in a file name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." || strings.TrimSpace(base) == "" {
		return fallbackName
	}
	return base
}
