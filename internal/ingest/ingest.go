// Package ingest consumes an inbound multipart body into a transient file,
// accepting only video parts and enforcing a cumulative size ceiling.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"

	"github.com/molpadia/molparelay/internal/logging"
)

const (
	// MaxUploadSize is the ceiling of bytes accepted per upload.
	MaxUploadSize int64 = 10 * units.MiB
	chunkSize           = 32 * units.KiB
)

var (
	ErrMissingContentType   = errors.New("missing content type")
	ErrUnsupportedMediaType = errors.New("only video files are allowed")
	ErrPayloadTooLarge      = errors.New("file size limit exceeded")
	ErrEmptyUpload          = errors.New("no file in request")
	ErrMalformedUpload      = errors.New("malformed multipart body")
	ErrTransport            = errors.New("cannot read upload")
)

// Asset is a sealed upload held in a temporary file. Its owner must Close it,
// which removes the file.
type Asset struct {
	path string
	size int64
	file *os.File
}

// Name returns the storage-assigned name of the asset.
func (a *Asset) Name() string { return filepath.Base(a.path) }

// Size returns the number of bytes held by the asset.
func (a *Asset) Size() int64 { return a.size }

// Path returns the location of the backing file.
func (a *Asset) Path() string { return a.path }

// Bytes reads the whole content of the asset.
func (a *Asset) Bytes() ([]byte, error) { return os.ReadFile(a.path) }

// Close releases the backing file. It is safe to call more than once.
func (a *Asset) Close() error {
	if a == nil || a.path == "" {
		return nil
	}
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
	err := os.Remove(a.path)
	a.path = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type Ingestor struct {
	maxSize int64
	tempDir string
}

// New returns an ingestor writing into tempDir, or the OS temp directory when
// empty. A non-positive maxSize selects MaxUploadSize.
func New(tempDir string, maxSize int64) *Ingestor {
	if maxSize <= 0 {
		maxSize = MaxUploadSize
	}
	return &Ingestor{maxSize: maxSize, tempDir: tempDir}
}

// MaxSize returns the ceiling enforced by the ingestor.
func (in *Ingestor) MaxSize() int64 { return in.maxSize }

// Ingest reads every part of the body into a single asset. Parts must declare a
// video content type. The ceiling is checked after every chunk so an oversized
// upload is rejected before it is fully read. On failure no file is left behind.
func (in *Ingestor) Ingest(ctx context.Context, r *multipart.Reader) (*Asset, error) {
	var (
		asset *Asset
		total int64
		parts int
		buf   = make([]byte, chunkSize)
	)
	fail := func(err error) (*Asset, error) {
		asset.Close()
		return nil, err
	}
	log := logging.FromContext(ctx, nil)

	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(nextPartError(err, parts))
		}
		parts++
		// Rejected parts are left unread.
		if err := checkContentType(part.Header.Get("Content-Type")); err != nil {
			return fail(err)
		}
		if asset == nil {
			f, err := os.CreateTemp(in.tempDir, "video-*")
			if err != nil {
				return nil, fmt.Errorf("cannot create temp file: %w", err)
			}
			asset = &Asset{path: f.Name(), file: f}
		}

		var written int64
		for {
			if err := ctx.Err(); err != nil {
				return fail(fmt.Errorf("%w: %v", ErrTransport, err))
			}
			n, err := part.Read(buf)
			if n > 0 {
				total += int64(n)
				if total > in.maxSize {
					return fail(fmt.Errorf("%w: more than %s", ErrPayloadTooLarge, units.BytesSize(float64(in.maxSize))))
				}
				if _, werr := asset.file.Write(buf[:n]); werr != nil {
					return fail(fmt.Errorf("cannot write temp file: %w", werr))
				}
				written += int64(n)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return fail(readError(err))
			}
		}
		log.Debug("buffered part", "field", part.FormName(), "filename", part.FileName(), "size", units.BytesSize(float64(written)))
	}

	if asset == nil {
		return nil, ErrEmptyUpload
	}
	if err := asset.file.Close(); err != nil {
		return fail(fmt.Errorf("cannot seal temp file: %w", err))
	}
	asset.file = nil
	asset.size = total
	return asset, nil
}

func checkContentType(contentType string) error {
	if strings.TrimSpace(contentType) == "" {
		return ErrMissingContentType
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	if top, _, _ := strings.Cut(mediaType, "/"); top != "video" {
		return fmt.Errorf("%w: got %s", ErrUnsupportedMediaType, mediaType)
	}
	return nil
}

// A body that fails before its first part is the caller's input, not a
// transport fault.
func nextPartError(err error, parts int) error {
	var maxErr *http.MaxBytesError
	if parts == 0 && !errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %v", ErrMalformedUpload, err)
	}
	return readError(err)
}

func readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: request body over %s", ErrPayloadTooLarge, units.BytesSize(float64(maxErr.Limit)))
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
