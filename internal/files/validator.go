package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/BioHazard786/Warpchat/internal/utils"
)

const zipMimeType = "application/zip"

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path of the bytes that go on the wire
	Path string

	// Name is the filename announced to the peer
	Name string

	Size int64

	// Type is the MIME type announced to the peer
	Type string

	// Temporary is set when Path was created for this send and should be
	// removed afterwards
	Temporary bool
}

// Prepare validates path for sending. Directories are zipped into a
// temporary archive first.
func Prepare(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return zipDirectory(absPath)
	}

	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectMimeType(absPath),
	}, nil
}

// Cleanup removes a temporary archive created by Prepare.
func (f FileInfo) Cleanup() error {
	if !f.Temporary {
		return nil
	}
	return os.Remove(f.Path)
}

// DetectMimeType guesses from the extension and falls back to binary.
func DetectMimeType(path string) string {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType
}

func zipDirectory(dir string) (FileInfo, error) {
	tmp, err := os.CreateTemp("", "warpchat-*.zip")
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to create archive: %w", dir, err)
	}
	target := tmp.Name()
	tmp.Close()

	if err := utils.ZipDirectory(dir, target); err != nil {
		os.Remove(target)
		return FileInfo{}, fmt.Errorf("%s: failed to zip directory: %w", dir, err)
	}

	stat, err := os.Stat(target)
	if err != nil {
		os.Remove(target)
		return FileInfo{}, fmt.Errorf("%s: failed to stat archive: %w", dir, err)
	}

	return FileInfo{
		Path:      target,
		Name:      filepath.Base(dir) + ".zip",
		Size:      stat.Size(),
		Type:      zipMimeType,
		Temporary: true,
	}, nil
}
