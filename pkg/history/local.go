package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethpandaops/resultoor/pkg/fsutil"
)

// Compile-time interface check.
var _ Store = (*localStore)(nil)

type localStore struct {
	dir   string
	owner *fsutil.OwnerConfig
}

// NewLocalStore creates a Store backed by a directory on the local
// filesystem. The directory is created on first write.
func NewLocalStore(dir string, owner *fsutil.OwnerConfig) Store {
	return &localStore{dir: dir, owner: owner}
}

func (s *localStore) Location() string {
	return s.dir
}

// List returns regular file names in the directory.
func (s *localStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

func (s *localStore) Get(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p) //nolint:gosec // name validated by path
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}

func (s *localStore) Create(_ context.Context, name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	if err := fsutil.MkdirAll(s.dir, 0o755, s.owner); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}

	if err := fsutil.CreateExclusive(p, data, 0o644, s.owner); err != nil {
		if fsutil.IsExist(err) {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}

		return fmt.Errorf("creating %s: %w", p, err)
	}

	return nil
}

func (s *localStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", p, err)
	}

	return nil
}

// path resolves name inside the store directory, rejecting anything that is
// not a plain file name.
func (s *localStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid run file name %q", name)
	}

	return filepath.Join(s.dir, name), nil
}
