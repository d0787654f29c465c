package storage

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

type fileStorage struct {
	directory string
}

type FileConfig struct {
	// Directory is resolved against the working directory; "" and "." mean
	// the working directory itself.
	Directory string
}

// NewFileStorage creates a new file storage backend rooted at an absolute
// directory, creating it if necessary.
func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}

	directory, err := filepath.Abs(f.Directory)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve output directory %s: %w", f.Directory, err)
	}

	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, xerrors.Errorf("failed to create output directory: %w", err)
	}

	return &fileStorage{
		directory: directory,
	}, nil
}

// Put writes to a temporary file next to the target and renames it into
// place, so the target name only ever holds a complete image.
func (a *fileStorage) Put(ctx context.Context, name string, data []byte) (string, error) {
	filePath := filepath.Join(a.directory, name)

	tmp, err := os.CreateTemp(a.directory, "."+name+".*.tmp")
	if err != nil {
		return "", xerrors.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", xerrors.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", xerrors.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", xerrors.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", xerrors.Errorf("failed to move file into place: %w", err)
	}

	return filePath, nil
}
