// Package localsource reads the local bot definition (flows and airules)
// from a directory, a SQL database or memory.
package localsource

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/agentworkforce/botsync/internal/botsync"
)

// Source is a botsync.LocalSource that may hold resources.
type Source interface {
	botsync.LocalSource
	Close() error
}

// Watchable sources can name the directories whose changes affect them.
type Watchable interface {
	WatchPaths() []string
}

// Open builds a Source from dsn. A bare path (or dir:// / file://) opens a
// directory source. Options apply to the directory source; other kinds
// ignore them.
func Open(dsn string, opts ...Option) (Source, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty source", ErrInvalidInput)
	}
	if isWindowsPath(dsn) {
		return NewDirSource(dsn, opts...), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "dir", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewDirSource(path, opts...), nil
	case "memory", "mem":
		return NewMemorySource(nil, nil), nil
	case "postgres", "postgresql":
		return NewPostgresSource(dsn)
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteSource(path)
	default:
		return nil, fmt.Errorf("unsupported source scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	// dir://bot/flows style DSNs put the first segment in the host.
	if host := strings.TrimSpace(parsed.Host); host != "" {
		path = host + path
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}

func isWindowsPath(dsn string) bool {
	return len(dsn) >= 2 && dsn[1] == ':' && filepath.VolumeName(dsn) != ""
}
