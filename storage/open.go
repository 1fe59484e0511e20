package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open returns the database backend named by kind rooted at dir.
func Open(kind, dir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "leveldb":
		return NewLevelDB(filepath.Join(dir, "state"))
	case "bolt", "bbolt":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return NewBoltDB(filepath.Join(dir, "state.db"))
	case "memory":
		return NewMemDB(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}
