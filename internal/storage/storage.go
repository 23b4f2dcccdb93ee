// Package storage archives benchmark artifacts to a local directory or S3.
package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

// ObjectStorage is the object store artifacts are archived to. Keys use
// forward slashes, laid out as <prefix>/<run-id>/<file> by the Archiver.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the local file at localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns the object keys under prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// tempPrefix marks in-flight files written by writeFileAtomic.
const tempPrefix = ".tpchbench-tmp-"

// writeFileAtomic streams r into path through a temporary file in the same
// directory, so a reader never sees a partial artifact.
func writeFileAtomic(path string, r io.Reader) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), tempPrefix)
}
