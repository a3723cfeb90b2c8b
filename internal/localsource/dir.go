package localsource

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentworkforce/botsync/internal/botsync"
)

const (
	flowsDirName    = "flows"
	airulesDirName  = "airules"
	airulesFileName = "airules.json"
)

// DirSource reads <root>/flows/*.json and <root>/airules/airules.json.
type DirSource struct {
	root   string
	logger *slog.Logger
}

var (
	_ Source    = (*DirSource)(nil)
	_ Watchable = (*DirSource)(nil)
)

func NewDirSource(root string, opts ...Option) *DirSource {
	o := collectOptions(opts)
	return &DirSource{root: filepath.Clean(root), logger: o.logger}
}

func (s *DirSource) Root() string {
	return s.root
}

// ListFlows returns flows in file-name order. A missing flows directory is an
// empty bot, not an error.
func (s *DirSource) ListFlows(ctx context.Context) ([]botsync.Flow, error) {
	dir := filepath.Join(s.root, flowsDirName)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []botsync.Flow{}, nil
	}
	if err != nil {
		return nil, &SourceError{Source: "dir", Path: dir, Err: err}
	}
	flows := make([]botsync.Flow, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		path := filepath.Join(dir, name)
		if reason := skipReason(entry); reason != "" {
			s.logger.Debug("flow entry skipped", slog.String("path", path), slog.String("reason", reason))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &SourceError{Source: "dir", Path: path, Err: err}
		}
		flow, err := decodeFlow(data)
		if err != nil {
			return nil, &SourceError{Source: "dir", Path: path, Err: err}
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func skipReason(entry fs.DirEntry) string {
	name := entry.Name()
	switch {
	case strings.HasPrefix(name, "."):
		return "hidden"
	case !entry.Type().IsRegular():
		return "not a regular file"
	case filepath.Ext(name) != ".json":
		return "not a .json file"
	}
	return ""
}

// Airules reads the airules document. A missing airules folder yields empty
// airules, which still replace the studio's; a folder without the document is
// an error, and a JSON null leaves the studio's airules alone.
func (s *DirSource) Airules(context.Context) (botsync.Airules, error) {
	dir := filepath.Join(s.root, airulesDirName)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return botsync.Airules{}, nil
	} else if err != nil {
		return nil, &SourceError{Source: "dir", Path: dir, Err: err}
	}
	path := filepath.Join(dir, airulesFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceError{Source: "dir", Path: path, Err: err}
	}
	rules, err := botsync.ParseAirules(data)
	if err != nil {
		return nil, &SourceError{Source: "dir", Path: path, Err: err}
	}
	return rules, nil
}

// WatchPaths lists the root and both document folders so a watcher notices
// the folders being created as well as their contents changing.
func (s *DirSource) WatchPaths() []string {
	return []string{
		s.root,
		filepath.Join(s.root, flowsDirName),
		filepath.Join(s.root, airulesDirName),
	}
}

func (s *DirSource) Close() error {
	return nil
}
