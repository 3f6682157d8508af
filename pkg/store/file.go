// Package store implements document persistence on a filesystem.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/go-pkgz/lgr"
	"github.com/spf13/afero"

	"github.com/umputun/kftoggle/pkg/document"
	"github.com/umputun/kftoggle/pkg/domain"
)

// DefaultBackupSuffix is appended to the document file name to make the backup path
const DefaultBackupSuffix = ".backup"

// FileStore loads and saves a single document file. Save makes a backup copy of the
// current file and replaces the original through a temp file and rename.
type FileStore struct {
	fs           afero.Fs
	path         string
	backupSuffix string
}

// FileStoreOpt is a functional option for FileStore
type FileStoreOpt func(*FileStore)

// WithBackupSuffix sets suffix of the backup file name
func WithBackupSuffix(suffix string) FileStoreOpt {
	return func(s *FileStore) {
		if suffix != "" {
			s.backupSuffix = suffix
		}
	}
}

// NewFileStore makes a store for the document at path on the given filesystem.
// Nil fs means the OS filesystem.
func NewFileStore(afs afero.Fs, path string, opts ...FileStoreOpt) *FileStore {
	if afs == nil {
		afs = afero.NewOsFs()
	}
	res := &FileStore{fs: afs, path: path, backupSuffix: DefaultBackupSuffix}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Path returns location of the document
func (s *FileStore) Path() string { return s.path }

// BackupPath returns location of the backup copy
func (s *FileStore) BackupPath() string { return s.path + s.backupSuffix }

// Exists checks if the document file is present
func (s *FileStore) Exists() (bool, error) {
	ok, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", s.path, err)
	}
	return ok, nil
}

// Load reads and parses the document. Missing file is reported as domain.ErrNotFound,
// unreadable content as domain.ErrMalformed.
func (s *FileStore) Load(ctx context.Context) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformed, s.path, err)
	}
	lgr.Printf("[DEBUG] loaded %s, %d bytes", s.path, len(data))
	return doc, nil
}

// Save writes the document. The current file content, if any, is copied to the backup path
// first. On any error the original file is left unchanged and domain.ErrWrite is returned.
func (s *FileStore) Save(ctx context.Context, doc *document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrWrite, err)
	}

	mode := fs.FileMode(0o644)
	if fi, statErr := s.fs.Stat(s.path); statErr == nil {
		mode = fi.Mode().Perm()
		if err := s.backup(mode); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWrite, err)
		}
	}

	if err := s.replace(data, mode); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWrite, err)
	}
	lgr.Printf("[DEBUG] saved %s, %d bytes", s.path, len(data))
	return nil
}

// backup copies the current document file to the backup path
func (s *FileStore) backup(mode fs.FileMode) error {
	orig, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("read original %s: %w", s.path, err)
	}
	if err := afero.WriteFile(s.fs, s.BackupPath(), orig, mode); err != nil {
		return fmt.Errorf("write backup %s: %w", s.BackupPath(), err)
	}
	lgr.Printf("[INFO] backup created: %s", s.BackupPath())
	return nil
}

// replace writes data to a temp file next to the document and renames it over the original
func (s *FileStore) replace(data []byte, mode fs.FileMode) (err error) {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = s.fs.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = s.fs.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpName, s.path, err)
	}
	return nil
}
