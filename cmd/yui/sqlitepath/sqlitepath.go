// Package sqlitepath resolves the SQLite database used by yui commands.
package sqlitepath

import (
	"fmt"
	"path/filepath"

	"github.com/papercomputeco/yui/pkg/dotdir"
)

// DefaultFileName is the database file kept in the .yui/ directory.
const DefaultFileName = "chatbox.db"

// ResolveSQLitePath returns override when set, otherwise chatbox.db inside
// the resolved .yui/ directory, which is created when missing.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	dir, err := dotdir.NewManager().Ensure(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving database directory: %w", err)
	}

	return filepath.Join(dir, DefaultFileName), nil
}
