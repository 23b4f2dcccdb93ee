package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

func newArchiverFixture(t *testing.T, compress bool) (*Archiver, *LocalStorage, string) {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	src := filepath.Join(t.TempDir(), "tpch_1_pg_cold.raw.csv")
	body := bytes.Repeat([]byte("Q01,1500,1.5\n"), 200)
	if err := os.WriteFile(src, body, 0644); err != nil {
		t.Fatal(err)
	}
	return NewArchiver(store, "/tpch/", compress), store, src
}

func TestArchiver_Key(t *testing.T) {
	plain := NewArchiver(nil, "tpch", false)
	if got := plain.Key("run1", "/tmp/x/a.csv"); got != "tpch/run1/a.csv" {
		t.Errorf("got %q", got)
	}
	sz := NewArchiver(nil, "", true)
	if got := sz.Key("run1", "a.csv"); got != "run1/a.csv.sz" {
		t.Errorf("got %q", got)
	}
}

func TestArchiver_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		archiver, store, src := newArchiverFixture(t, compress)
		ctx := context.Background()

		key, err := archiver.Archive(ctx, "run1", src)
		if err != nil {
			t.Fatalf("compress=%v: Archive failed: %v", compress, err)
		}
		exists, err := store.Exists(ctx, key)
		if err != nil || !exists {
			t.Fatalf("compress=%v: archived object missing (%v)", compress, err)
		}

		want, _ := os.ReadFile(src)
		if compress {
			raw := filepath.Join(t.TempDir(), "raw.sz")
			if err := store.Download(ctx, key, raw); err != nil {
				t.Fatal(err)
			}
			stored, _ := os.ReadFile(raw)
			if bytes.Equal(stored, want) {
				t.Error("compressed object should differ from source")
			}
		}

		out := filepath.Join(t.TempDir(), "restored.csv")
		if err := archiver.Fetch(ctx, key, out); err != nil {
			t.Fatalf("compress=%v: Fetch failed: %v", compress, err)
		}
		got, _ := os.ReadFile(out)
		if !bytes.Equal(got, want) {
			t.Errorf("compress=%v: content mismatch after round trip", compress)
		}

		keys, err := archiver.List(ctx, "run1")
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 1 || keys[0] != key {
			t.Errorf("compress=%v: unexpected listing %v", compress, keys)
		}
	}
}

func TestArchiver_MissingSource(t *testing.T) {
	archiver, _, _ := newArchiverFixture(t, true)
	_, err := archiver.Archive(context.Background(), "run1", filepath.Join(t.TempDir(), "nope.csv"))
	if benchErrors.GetCode(err) != benchErrors.CodeUploadFailed {
		t.Errorf("expected upload failed, got %v", err)
	}
}

func TestArchiver_FetchMissing(t *testing.T) {
	archiver, _, _ := newArchiverFixture(t, false)
	err := archiver.Fetch(context.Background(), "tpch/none/a.csv", filepath.Join(t.TempDir(), "a.csv"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retryWithBackoff(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("expected success after 3 calls, got %v after %d", err, calls)
	}

	calls = 0
	err = retryWithBackoff(ctx, 3, time.Millisecond, func() error {
		calls++
		return ErrObjectNotFound
	})
	if !errors.Is(err, ErrObjectNotFound) || calls != 1 {
		t.Errorf("not-found must not be retried: %v after %d calls", err, calls)
	}

	calls = 0
	err = retryWithBackoff(ctx, 2, time.Millisecond, func() error {
		calls++
		return errors.New("always")
	})
	if err == nil || calls != 3 {
		t.Errorf("expected failure after 3 attempts, got %v after %d", err, calls)
	}
}

func TestContentType(t *testing.T) {
	for key, want := range map[string]string{
		"tpch/r1/tpch_1_pg_cold.raw.csv":    "text/csv",
		"tpch/r1/comparison.png":            "image/png",
		"tpch/r1/tpch_1_pg_cold.raw.csv.sz": "application/x-snappy-framed",
		"tpch/r1/notes":                     "application/octet-stream",
	} {
		if got := contentType(key); got != want {
			t.Errorf("contentType(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestArtifactMetadata(t *testing.T) {
	meta := artifactMetadata("tpch/0a1b2c3d/tpch_1_pg_cold.raw.csv.sz")
	if meta["tpchbench-run"] != "0a1b2c3d" || meta["tpchbench-encoding"] != "snappy" {
		t.Errorf("unexpected metadata %v", meta)
	}
	if meta := artifactMetadata("tpch/0a1b2c3d/chart.png"); len(meta) != 1 {
		t.Errorf("plain artifact should carry only the run: %v", meta)
	}
	if meta := artifactMetadata("chart.png"); meta != nil {
		t.Errorf("key without a run directory: %v", meta)
	}
}
