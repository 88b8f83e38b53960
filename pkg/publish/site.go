// Package publish places rendered reports into the site directory and
// uploads it to remote storage.
package publish

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/resultoor/pkg/fsutil"
	"github.com/ethpandaops/resultoor/pkg/report"
)

// Site is the local published site. Writing a report replaces exactly one
// file; everything else in the directory is left untouched.
type Site struct {
	dir            string
	historicalPath string
	tablePath      string
	owner          *fsutil.OwnerConfig
}

// NewSite creates a Site rooted at dir. historicalPath and tablePath are
// slash-separated paths relative to dir.
func NewSite(dir, historicalPath, tablePath string, owner *fsutil.OwnerConfig) (*Site, error) {
	for _, p := range []string{historicalPath, tablePath} {
		if err := checkRelative(p); err != nil {
			return nil, err
		}
	}

	if filepath.Clean(historicalPath) == filepath.Clean(tablePath) {
		return nil, fmt.Errorf("historical and table documents share the path %q", historicalPath)
	}

	return &Site{
		dir:            dir,
		historicalPath: historicalPath,
		tablePath:      tablePath,
		owner:          owner,
	}, nil
}

// Dir returns the site root.
func (s *Site) Dir() string {
	return s.dir
}

// RelPath returns the document path for mode, relative to the site root.
func (s *Site) RelPath(mode report.Mode) string {
	if mode == report.ModeTable {
		return s.tablePath
	}

	return s.historicalPath
}

// Path returns the absolute document path for mode.
func (s *Site) Path(mode report.Mode) string {
	return filepath.Join(s.dir, filepath.FromSlash(s.RelPath(mode)))
}

// Write atomically replaces the document for mode and returns its path.
func (s *Site) Write(mode report.Mode, html []byte) (string, error) {
	p := s.Path(mode)

	if err := fsutil.MkdirAll(filepath.Dir(p), 0o755, s.owner); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", p, err)
	}

	if err := fsutil.WriteFileAtomic(p, html, 0o644, s.owner); err != nil {
		return "", fmt.Errorf("writing %s report: %w", mode, err)
	}

	return p, nil
}

func checkRelative(p string) error {
	if p == "" {
		return fmt.Errorf("document path is empty")
	}

	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("document path %q must be relative", p)
	}

	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("document path %q must not leave the site directory", p)
		}
	}

	return nil
}
