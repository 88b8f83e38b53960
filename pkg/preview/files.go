package preview

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const indexFile = "index.html"

// siteFileServer serves files from a single site root. Directory requests
// resolve to their index.html.
type siteFileServer struct {
	log  logrus.FieldLogger
	root string
}

func newSiteFileServer(log logrus.FieldLogger, root string) *siteFileServer {
	return &siteFileServer{
		log:  log.WithField("component", "site-file-server"),
		root: filepath.Clean(root),
	}
}

// ServeFile serves filePath (relative to the site root). An error is
// returned when the path is disallowed or missing.
func (f *siteFileServer) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	filePath = strings.TrimSuffix(filePath, "/")

	if filePath == "" {
		filePath = indexFile
	}

	if !isAllowedPath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(f.root, filepath.FromSlash(filePath))

	if !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the site root", filePath)
	}

	info, err := os.Stat(full)
	if err != nil {
		return fmt.Errorf("stat %q: %w", filePath, err)
	}

	if info.IsDir() {
		full = filepath.Join(full, indexFile)

		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("directory %q has no %s", filePath, indexFile)
		}
	}

	// http.ServeFile redirects ".../index.html" requests; ServeContent does not.
	fh, err := os.Open(full) //nolint:gosec // path validated above
	if err != nil {
		return fmt.Errorf("opening %q: %w", filePath, err)
	}
	defer func() { _ = fh.Close() }()

	stat, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", filePath, err)
	}

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), fh)

	return nil
}

// isAllowedPath rejects empty, absolute, unclean or traversal paths.
func isAllowedPath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	if filepath.IsAbs(filePath) || strings.HasPrefix(filePath, "/") {
		return false
	}

	return path.Clean(filePath) == filePath
}
