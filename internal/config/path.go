// Package config provides configuration helpers shared by the CLI commands.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves ~ and $VAR references in a configured file path, so
// database locations like "~/.local/share/ledgersift/ledgersift.db" or
// "$XDG_DATA_HOME/ledgersift.db" work as users expect.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
