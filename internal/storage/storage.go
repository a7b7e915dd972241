package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxEvidenceFiles = 5

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooManyFiles    = errors.New("too many files")
)

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".pdf": {}, ".txt": {}, ".log": {}, ".doc": {}, ".docx": {},
	".csv": {}, ".json": {}, ".zip": {},
}

// Local keeps evidence files in one directory served under PublicPrefix.
type Local struct {
	Dir          string
	PublicPrefix string
	MaxBytes     int64
}

func NewLocal(dir, publicPrefix string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{Dir: dir, PublicPrefix: strings.TrimRight(publicPrefix, "/"), MaxBytes: maxBytes}, nil
}

// GenerateFileName keeps only the extension of the client's name.
func GenerateFileName(original string) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return uuid.NewString() + ext, nil
}

// Save stores r and returns the public reference of the new file.
func (s *Local) Save(ctx context.Context, original string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := GenerateFileName(original)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}

	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(full)
		return "", copyErr
	case closeErr != nil:
		_ = os.Remove(full)
		return "", closeErr
	case s.MaxBytes > 0 && n > s.MaxBytes:
		_ = os.Remove(full)
		return "", fmt.Errorf("%w: %s", ErrTooLarge, original)
	}

	return path.Join(s.PublicPrefix, name), nil
}

// SaveAll stores every file or none of them.
func (s *Local) SaveAll(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	if len(files) > MaxEvidenceFiles {
		return nil, fmt.Errorf("%w: at most %d", ErrTooManyFiles, MaxEvidenceFiles)
	}

	refs := make([]string, 0, len(files))
	for _, fh := range files {
		ref, err := s.saveHeader(ctx, fh)
		if err != nil {
			_ = s.Remove(ctx, refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *Local) saveHeader(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if s.MaxBytes > 0 && fh.Size > s.MaxBytes {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, fh.Filename)
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return s.Save(ctx, fh.Filename, src)
}

// Remove deletes stored files by reference. Missing files are not an error.
func (s *Local) Remove(_ context.Context, refs []string) error {
	var errs []error
	for _, ref := range refs {
		full, ok := s.resolve(ref)
		if !ok {
			errs = append(errs, fmt.Errorf("reference outside upload dir: %q", ref))
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Local) resolve(ref string) (string, bool) {
	name := strings.TrimPrefix(ref, s.PublicPrefix+"/")
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", false
	}
	return filepath.Join(s.Dir, name), true
}
