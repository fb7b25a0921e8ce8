package localization

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	derrors "github.com/hanfei1991/dfnode/pkg/errors"
)

// Storage keeps the resources a job stages on the local disk, e.g. jars or
// data files shipped with the job. All resources live under one directory
// owned by a single job context.
type Storage struct {
	dir string

	mu sync.Mutex
}

// NewStorage creates a Storage rooted at <baseDir>/<jobName>/<contextID>.
// The directory is created lazily by the first Stage.
func NewStorage(baseDir, jobName, contextID string) *Storage {
	return &Storage{
		dir: filepath.Join(baseDir, jobName, contextID),
	}
}

// Dir returns the directory of the storage.
func (s *Storage) Dir() string {
	return s.dir
}

// Stage copies the content of r into the resource named id and returns
// its path. An existing resource with the same id is replaced.
func (s *Storage) Stage(id string, r io.Reader) (string, error) {
	if err := checkResourceID(id); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", derrors.Wrap(derrors.ErrLocalStorageFailed, err, "mkdir")
	}

	// write to a temporary file first so that readers never see a
	// partially staged resource
	tmp, err := os.CreateTemp(s.dir, "."+id+".staging-*")
	if err != nil {
		return "", derrors.Wrap(derrors.ErrLocalStorageFailed, err, "create")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close() //nolint:errcheck
		return "", derrors.Wrap(derrors.ErrLocalStorageFailed, err, "write")
	}
	if err := tmp.Close(); err != nil {
		return "", derrors.Wrap(derrors.ErrLocalStorageFailed, err, "write")
	}

	path := filepath.Join(s.dir, id)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", derrors.Wrap(derrors.ErrLocalStorageFailed, err, "rename")
	}
	log.L().Debug("resource staged",
		zap.String("resource-id", id),
		zap.String("path", path))
	return path, nil
}

// Path returns the path of a staged resource.
func (s *Storage) Path(id string) (string, error) {
	if err := checkResourceID(id); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, id)
	if _, err := os.Stat(path); err != nil {
		return "", derrors.Wrap(derrors.ErrLocalStorageFailed, err, "stat")
	}
	return path, nil
}

// List returns the ids of the staged resources in lexical order.
func (s *Storage) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, derrors.Wrap(derrors.ErrLocalStorageFailed, err, "list")
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// CleanUp removes every resource of the job together with its directory.
// It can be called more than once; a missing directory is not an error.
func (s *Storage) CleanUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			log.L().Info("no local resources to clean up", zap.String("dir", s.dir))
			return nil
		}
		return derrors.Wrap(derrors.ErrLocalStorageFailed, err, "stat")
	}

	if err := os.RemoveAll(s.dir); err != nil {
		return derrors.Wrap(derrors.ErrLocalStorageFailed, err, "remove")
	}
	log.L().Info("local resources removed", zap.String("dir", s.dir))
	return nil
}

func checkResourceID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return derrors.ErrInvalidResourceID.GenWithStackByArgs(id)
	}
	return nil
}
