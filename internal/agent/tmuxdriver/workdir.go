package tmuxdriver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveWorkingDir expands a leading "~" or "~/" to the user's home
// directory, resolves the result to a clean absolute path, and checks it
// names an existing directory. An empty path is left alone (tmux's own
// default applies).
func resolveWorkingDir(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("tmuxdriver: resolve home directory: %w", err)
		}
		path = home
	} else if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("tmuxdriver: resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("tmuxdriver: resolve absolute path: %w", err)
	}
	resolved := filepath.Clean(abs)

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("tmuxdriver: stat working directory %q: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("tmuxdriver: working directory %q is not a directory", resolved)
	}

	return resolved, nil
}
