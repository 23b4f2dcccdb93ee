package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/rs/zerolog/log"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// CompressedSuffix is appended to object keys written with compression.
const CompressedSuffix = ".sz"

// Archiver copies run artifacts (results files, charts) into object storage
// under <prefix>/<run-id>/<file>.
type Archiver struct {
	store    ObjectStorage
	prefix   string
	compress bool
	tmpDir   string
}

// NewArchiver creates an archiver writing to store. When compress is set,
// artifacts are framed with snappy and stored with a .sz suffix.
func NewArchiver(store ObjectStorage, prefix string, compress bool) *Archiver {
	return &Archiver{
		store:    store,
		prefix:   strings.Trim(prefix, "/"),
		compress: compress,
		tmpDir:   os.TempDir(),
	}
}

// Key returns the object key an artifact is stored under.
func (a *Archiver) Key(runID, localPath string) string {
	name := filepath.Base(localPath)
	if a.compress {
		name += CompressedSuffix
	}
	if a.prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(a.prefix, runID, name)
}

// Archive uploads localPath for the given run and returns its object key.
func (a *Archiver) Archive(ctx context.Context, runID, localPath string) (string, error) {
	key := a.Key(runID, localPath)

	src := localPath
	if a.compress {
		tmp, err := a.compressToTemp(localPath)
		if err != nil {
			return "", benchErrors.NewStorageError(benchErrors.CodeUploadFailed,
				fmt.Sprintf("failed to compress %s", localPath), err)
		}
		defer os.Remove(tmp)
		src = tmp
	}

	if err := a.store.Upload(ctx, src, key); err != nil {
		return "", benchErrors.NewStorageError(benchErrors.CodeUploadFailed,
			fmt.Sprintf("failed to archive %s", localPath), err)
	}

	log.Debug().Str("key", key).Str("file", localPath).Msg("Archived artifact")
	return key, nil
}

// Fetch downloads the object at key into localPath, decompressing keys that
// carry the .sz suffix.
func (a *Archiver) Fetch(ctx context.Context, key, localPath string) error {
	if !strings.HasSuffix(key, CompressedSuffix) {
		return a.store.Download(ctx, key, localPath)
	}

	tmp, err := os.CreateTemp(a.tmpDir, "tpchbench-fetch-*"+CompressedSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := a.store.Download(ctx, key, tmpPath); err != nil {
		return err
	}
	return decompressFile(tmpPath, localPath)
}

// List returns the keys archived for a run.
func (a *Archiver) List(ctx context.Context, runID string) ([]string, error) {
	prefix := runID + "/"
	if a.prefix != "" {
		prefix = a.prefix + "/" + prefix
	}
	return a.store.ListObjects(ctx, prefix)
}

func (a *Archiver) compressToTemp(localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(a.tmpDir, "tpchbench-archive-*"+CompressedSuffix)
	if err != nil {
		return "", err
	}

	w := snappy.NewBufferedWriter(dst)
	if _, err := io.Copy(w, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := w.Close(); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func decompressFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := writeFileAtomic(dstPath, snappy.NewReader(src)); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}
