package snapshot

import (
	"context"
	"errors"
	"image"
	"io"
	"io/fs"
	"os"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/disintegration/imaging"
)

// JPEGQuality is the fixed encoder quality of saved snapshots.
const JPEGQuality = 95

// FileSelector allocates destinations and deploys written files.
type FileSelector interface {
	// JPGPath reserves a destination. ok is false when none is available.
	JPGPath(ctx context.Context) (path string, ok bool, err error)
	// Deploy finalizes a file written to a path returned by JPGPath.
	Deploy(ctx context.Context, path string) error
}

// Committer is implemented by selectors whose deploy moves the file and can
// report where it ended up.
type Committer interface {
	Commit(ctx context.Context, path string) (string, error)
}

// Discarder is implemented by selectors that track allocations and want to
// release one after a failed write.
type Discarder interface {
	Discard(path string)
}

// Encoder writes img to w in the on-disk format.
type Encoder func(w io.Writer, img image.Image) error

// EncodeJPEG is the default Encoder.
func EncodeJPEG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality))
}

// Persister runs the allocate, write and deploy steps of one save.
type Persister struct {
	files  FileSelector
	encode Encoder
}

// NewPersister returns a persister writing JPEGs through files.
// A nil encode uses EncodeJPEG.
func NewPersister(files FileSelector, encode Encoder) *Persister {
	if encode == nil {
		encode = EncodeJPEG
	}
	return &Persister{files: files, encode: encode}
}

// Save persists img. ok is false, with a nil error, when no destination was
// available and the image was dropped. Errors are *SaveError. The returned
// path is the committed location when the selector reports one, otherwise
// the allocated path.
func (p *Persister) Save(ctx context.Context, seq uint64, img image.Image) (path string, ok bool, err error) {
	path, ok, err = p.files.JPGPath(ctx)
	if err != nil {
		return "", false, &SaveError{Stage: StageAllocate, Err: err}
	}
	if !ok {
		return "", false, nil
	}
	debug.Verbose("Snapshot #%d: writing %s", seq, path)

	if err := p.write(path, img); err != nil {
		p.release(path)
		return "", false, &SaveError{Stage: StageWrite, Path: path, Err: err}
	}

	// The write is complete; only deploy is skipped once the save context is gone.
	if err := ctx.Err(); err != nil {
		p.release(path)
		return "", false, &SaveError{Stage: StageDeploy, Path: path, Err: err}
	}

	if c, isCommitter := p.files.(Committer); isCommitter {
		final, err := c.Commit(ctx, path)
		if err != nil {
			return "", false, &SaveError{Stage: StageDeploy, Path: path, Err: err}
		}
		return final, true, nil
	}
	if err := p.files.Deploy(ctx, path); err != nil {
		return "", false, &SaveError{Stage: StageDeploy, Path: path, Err: err}
	}
	return path, true, nil
}

// write encodes img into a new file at path. The file is closed on every
// return and a failed Close fails the write.
func (p *Persister) write(path string, img image.Image) (err error) {
	if img == nil {
		return errors.New("nil image")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return p.encode(f, img)
}

func (p *Persister) release(path string) {
	if d, ok := p.files.(Discarder); ok {
		d.Discard(path)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		debug.Errorf("remove %s: %v", path, err)
	}
}
