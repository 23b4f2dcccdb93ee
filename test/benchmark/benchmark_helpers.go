package benchmark

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/pgduckdb/tpchbench/internal/storage"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// PrefixedStorage wraps an ObjectStorage and prepends a prefix to all object paths.
type PrefixedStorage struct {
	inner  storage.ObjectStorage
	prefix string
}

func (s *PrefixedStorage) Upload(ctx context.Context, localPath, objectPath string) error {
	return s.inner.Upload(ctx, localPath, s.prefix+"/"+objectPath)
}

func (s *PrefixedStorage) Download(ctx context.Context, objectPath, localPath string) error {
	return s.inner.Download(ctx, s.prefix+"/"+objectPath, localPath)
}

func (s *PrefixedStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	return s.inner.Exists(ctx, s.prefix+"/"+objectPath)
}

func (s *PrefixedStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.prefix + "/" + prefix
	objects, err := s.inner.ListObjects(ctx, fullPrefix)
	if err != nil {
		return nil, err
	}
	stripped := make([]string, len(objects))
	for i, obj := range objects {
		stripped[i] = strings.TrimPrefix(obj, s.prefix+"/")
	}
	return stripped, nil
}

// getBenchmarkStorage returns the artifact store to benchmark against.
// TPCHBENCH_STORAGE_TYPE=s3 (from .env or the environment) selects S3 under
// a unique "bench/<name>/<timestamp>" prefix; otherwise a temp dir is used.
func getBenchmarkStorage(b *testing.B, benchName string) (storage.ObjectStorage, func()) {
	_ = godotenv.Load("../../.env")

	if os.Getenv("TPCHBENCH_STORAGE_TYPE") == "s3" {
		bucket := os.Getenv("TPCHBENCH_S3_BUCKET")
		if bucket == "" {
			b.Fatal("TPCHBENCH_S3_BUCKET is required for s3 benchmark")
		}
		st, err := storage.NewS3Storage(context.Background(), bucket, storage.S3Config{
			Region:   os.Getenv("TPCHBENCH_S3_REGION"),
			Endpoint: os.Getenv("TPCHBENCH_S3_ENDPOINT"),
		})
		if err != nil {
			b.Fatalf("Failed to initialize S3 storage: %v", err)
		}

		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("Running benchmark against S3 Bucket: %s Prefix: %s", bucket, prefix)
		// Objects are left in place for inspection.
		return &PrefixedStorage{inner: st, prefix: prefix}, func() {}
	}

	dir, err := os.MkdirTemp("", "tpchbench-bench-"+benchName+"-*")
	if err != nil {
		b.Fatal(err)
	}
	st, err := storage.NewLocalStorage(path.Join(dir, "storage"))
	if err != nil {
		b.Fatal(err)
	}
	return st, func() { os.RemoveAll(dir) }
}

// syntheticSamples returns the 22 TPC-H queries with latencies spread over
// several orders of magnitude. factor scales every latency.
func syntheticSamples(factor float64) []types.Sample {
	samples := make([]types.Sample, 22)
	for i := range samples {
		ms := float64((i*37)%97+1) * float64(i%4*10+1) * factor
		samples[i] = types.OKSample(fmt.Sprintf("Q%02d", i+1), ms, int64(i+1))
	}
	return samples
}
