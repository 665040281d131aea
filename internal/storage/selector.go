// Package storage allocates snapshot destinations, commits written files
// into the dated snapshot tree and keeps the artifact index.
package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/google/uuid"
)

// ErrUnknownAllocation is returned by Deploy for a path JPGPath never handed out
// (or one that was already deployed or discarded).
var ErrUnknownAllocation = errors.New("path was not allocated by this selector")

// StagingDirName is the directory under the storage root holding files being written.
const StagingDirName = ".staging"

// Options configure a Selector.
type Options struct {
	Dir          string           // committed snapshot root; must exist
	MinFreeBytes uint64           // 0 disables the free-space check
	Index        *Index           // optional artifact index
	Clock        func() time.Time // defaults to time.Now
}

type allocation struct {
	id uuid.UUID
	at time.Time
}

// Selector hands out staging paths and commits them on Deploy.
// It is safe for concurrent use by many save tasks.
type Selector struct {
	dir        string
	stagingDir string
	minFree    uint64
	index      *Index
	clock      func() time.Time
	freeBytes  func(path string) (uint64, error)

	mu      sync.Mutex
	pending map[string]allocation
}

// NewSelector validates options and returns a selector.
func NewSelector(opts Options) (*Selector, error) {
	if opts.Dir == "" {
		return nil, errors.New("storage dir must not be empty")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Selector{
		dir:        opts.Dir,
		stagingDir: filepath.Join(opts.Dir, StagingDirName),
		minFree:    opts.MinFreeBytes,
		index:      opts.Index,
		clock:      clock,
		freeBytes:  freeBytes,
		pending:    make(map[string]allocation),
	}
	s.sweepStaging()
	return s, nil
}

// sweepStaging removes staging files left by a previous process that died
// or abandoned saves before deploying them.
func (s *Selector) sweepStaging() {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			debug.Errorf("read staging dir: %v", err)
		}
		return
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		removeQuietly(filepath.Join(s.stagingDir, e.Name()))
		n++
	}
	if n > 0 {
		debug.Info("Storage: removed %d stale staging file(s) from %s", n, s.stagingDir)
	}
}

// JPGPath reserves a staging path for one snapshot. ok is false, with a nil
// error, when no destination is currently available: the storage root is
// missing (unmounted card, detached drive) or below the free-space floor.
func (s *Selector) JPGPath(ctx context.Context) (path string, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	info, err := os.Stat(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		debug.Verbose("Storage: root %s not present, skipping snapshot", s.dir)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return "", false, fmt.Errorf("storage root %s is not a directory", s.dir)
	}

	if s.minFree > 0 {
		free, err := s.freeBytes(s.dir)
		if err != nil {
			return "", false, fmt.Errorf("free space of %s: %w", s.dir, err)
		}
		if free < s.minFree {
			debug.Live("Storage: %d bytes free under %s (floor %d), skipping snapshot", free, s.dir, s.minFree)
			return "", false, nil
		}
	}

	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return "", false, fmt.Errorf("ensure staging dir: %w", err)
	}

	id := uuid.New()
	path = filepath.Join(s.stagingDir, id.String()+".jpg")

	s.mu.Lock()
	s.pending[path] = allocation{id: id, at: s.clock()}
	s.mu.Unlock()

	debug.Verbose("Storage: allocated %s", path)
	return path, true, nil
}

// Deploy moves a fully written staging file into the dated snapshot tree
// and registers it in the index.
func (s *Selector) Deploy(ctx context.Context, path string) error {
	_, err := s.Commit(ctx, path)
	return err
}

// Commit is Deploy returning the committed path.
func (s *Selector) Commit(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	a, ok := s.pending[path]
	delete(s.pending, path)
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("deploy %s: %w", path, ErrUnknownAllocation)
	}

	if err := ctx.Err(); err != nil {
		removeQuietly(path)
		return "", err
	}

	final := s.committedPath(a)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		removeQuietly(path)
		return "", fmt.Errorf("ensure day dir: %w", err)
	}
	if err := os.Rename(path, final); err != nil {
		removeQuietly(path)
		return "", fmt.Errorf("commit %s: %w", filepath.Base(final), err)
	}

	// The rename is the commit; indexing is best effort from here on.
	if s.index != nil {
		s.register(context.WithoutCancel(ctx), a, final)
	}
	return final, nil
}

// register records a committed file in the index. A failure leaves the file
// in place and is only logged.
func (s *Selector) register(ctx context.Context, a allocation, final string) {
	info, err := os.Stat(final)
	if err != nil {
		debug.Errorf("index %s: stat committed file: %v", final, err)
		return
	}
	w, h := imageDimensions(final)
	art := Artifact{
		ID:         a.id.String(),
		Path:       final,
		Bytes:      info.Size(),
		Width:      w,
		Height:     h,
		CapturedAt: a.at.UTC(),
		DeployedAt: s.clock().UTC(),
	}
	if err := s.index.Insert(ctx, art); err != nil {
		debug.Errorf("index %s: %v", filepath.Base(final), err)
	}
}

// Discard drops an allocation whose write failed and removes any partial file.
func (s *Selector) Discard(path string) {
	s.mu.Lock()
	delete(s.pending, path)
	s.mu.Unlock()
	removeQuietly(path)
}

// Pending returns the number of allocations not yet deployed or discarded.
func (s *Selector) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Dir returns the committed snapshot root.
func (s *Selector) Dir() string {
	return s.dir
}

// committedPath returns <dir>/<YYYY-MM-DD>/<HHMMSS.mmm>_<id8>.jpg.
func (s *Selector) committedPath(a allocation) string {
	day := a.at.Format("2006-01-02")
	name := fmt.Sprintf("%s_%s.jpg", a.at.Format("150405.000"), a.id.String()[:8])
	return filepath.Join(s.dir, day, name)
}

func imageDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		debug.Errorf("remove %s: %v", path, err)
	}
}
