package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultPools are the announce endpoints used until the user saves a list.
var DefaultPools = []string{
	"wss://tracker.openwebtorrent.com",
	"wss://tracker.btorrent.xyz",
	"wss://tracker.fastcast.nz",
	"wss://tracker.webtorrent.dev",
}

var ErrInvalidPool = errors.New("announce endpoint must be a ws:// or wss:// URL")

// ParsePools splits newline-separated endpoints, dropping blanks.
func ParsePools(text string) []string {
	var pools []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pools = append(pools, line)
	}
	return pools
}

// LoadPools reads the persisted endpoint list. A missing or empty file yields
// the defaults.
func LoadPools(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return slices.Clone(DefaultPools), nil
		}
		return nil, fmt.Errorf("failed to read pools %s: %w", path, err)
	}

	pools := ParsePools(string(b))
	if len(pools) == 0 {
		return slices.Clone(DefaultPools), nil
	}
	return pools, nil
}

// SavePools persists pools newline-separated.
func SavePools(path string, pools []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data := strings.Join(pools, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write pools %s: %w", path, err)
	}
	return nil
}

// RestoreDefaultPools overwrites the persisted list with the defaults.
func RestoreDefaultPools(path string) ([]string, error) {
	pools := slices.Clone(DefaultPools)
	return pools, SavePools(path, pools)
}

// ValidatePool checks that endpoint is a websocket URL with a host.
func ValidatePool(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, ErrInvalidPool)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%s: %w", endpoint, ErrInvalidPool)
	}
	return nil
}

// AddPool appends endpoint unless it is already present.
func AddPool(pools []string, endpoint string) ([]string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if err := ValidatePool(endpoint); err != nil {
		return pools, err
	}
	if slices.Contains(pools, endpoint) {
		return pools, nil
	}
	return append(slices.Clone(pools), endpoint), nil
}

// RemovePool drops endpoint and reports whether it was present.
func RemovePool(pools []string, endpoint string) ([]string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	i := slices.Index(pools, endpoint)
	if i < 0 {
		return pools, false
	}
	return slices.Delete(slices.Clone(pools), i, i+1), true
}
