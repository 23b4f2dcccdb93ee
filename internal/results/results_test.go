package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

func TestFileName(t *testing.T) {
	got := FileName(1700000000, "duckdb", "hot")
	if got != "tpch_1700000000_duckdb_hot.raw.csv" {
		t.Errorf("unexpected file name %q", got)
	}
}

func TestWriteCreatesDirectoryAndHeader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	samples := []types.Sample{
		types.OKSample("Q01", 123.5, 4),
		types.TimedOutSample("Q02", 300),
		types.FailedSample("Q03", "boom"),
	}

	path, err := Write(dir, "tpch_1_pg_cold.raw.csv", samples)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"Transaction Name,Latency (microseconds),Latency (ms),Rows",
		"Q01,123500,123.5,4",
		"Q02,300000000,300000,0",
		"Q03,999999999,999999.999,0",
		"",
	}, "\n")
	if string(data) != want {
		t.Errorf("unexpected file contents:\n%s\nwant:\n%s", data, want)
	}
	if strings.Contains(string(data), "boom") {
		t.Error("error text must never reach the results file")
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	samples := []types.Sample{
		types.OKSample("Q01", 0.123456789, 1),
		types.OKSample("Q02", 98765.4321, 100),
		types.FailedSample("Q03", "relation does not exist"),
		types.OKSample("Q04", 0, 0),
	}
	path, err := Write(dir, "r.csv", samples)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i].QueryName != samples[i].QueryName || got[i].LatencyMS != samples[i].LatencyMS ||
			got[i].Rows != samples[i].Rows || got[i].Status != samples[i].Status {
			t.Errorf("sample %d: got %+v, want %+v", i, got[i], samples[i])
		}
	}
}

func TestReadTimedOutKeepsLatency(t *testing.T) {
	path, err := Write(t.TempDir(), "r.csv", []types.Sample{types.TimedOutSample("Q09", 60)})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].LatencyMS != 60000 || got[0].Rows != 0 {
		t.Errorf("unexpected %+v", got[0])
	}
}

func TestDecodeDerivesMilliseconds(t *testing.T) {
	in := "Transaction Name,Latency (microseconds),Rows\nQ01,2500,3\nQ02,999999999,0\n"
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got[0].LatencyMS != 2.5 || got[0].Rows != 3 {
		t.Errorf("unexpected %+v", got[0])
	}
	if got[1].Status != types.StatusFailed {
		t.Errorf("sentinel should decode as failed, got %v", got[1].Status)
	}
}

func TestDecodeColumnOrderFromHeader(t *testing.T) {
	in := "Rows,Latency (ms),Transaction Name\n5,1.5,Q07\n"
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].QueryName != "Q07" || got[0].LatencyMS != 1.5 || got[0].Rows != 5 {
		t.Errorf("unexpected %+v", got[0])
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":           "",
		"no name column":  "Latency (ms)\n1\n",
		"no latency":      "Transaction Name,Rows\nQ01,1\n",
		"bad latency":     "Transaction Name,Latency (ms),Rows\nQ01,fast,1\n",
		"bad rows":        "Transaction Name,Latency (ms),Rows\nQ01,1,many\n",
		"short row":       "Transaction Name,Latency (ms),Rows\nQ01\n",
		"negative values": "Transaction Name,Latency (ms),Rows\nQ01,-5,1\n",
	}
	for name, in := range tests {
		if _, err := Decode(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.csv"))
	if benchErrors.GetCode(err) != benchErrors.CodeResultsMissing {
		t.Errorf("expected results missing, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("nonsense\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Read(path)
	if benchErrors.GetCode(err) != benchErrors.CodeMalformedFile {
		t.Errorf("expected malformed file, got %v", err)
	}
}

// TestProperty_RoundTripPreservesSamples checks that any list of successful
// samples survives a write and reload unchanged and in order.
func TestProperty_RoundTripPreservesSamples(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	dir := t.TempDir()

	properties.Property("write then read is identity for ok samples", prop.ForAll(
		func(latencies []float64) bool {
			samples := make([]types.Sample, len(latencies))
			for i, l := range latencies {
				samples[i] = types.OKSample("Q"+string(rune('A'+i%26)), l, int64(i))
			}
			path, err := Write(dir, "prop.csv", samples)
			if err != nil {
				return false
			}
			got, err := Read(path)
			if err != nil || len(got) != len(samples) {
				return false
			}
			for i := range samples {
				if got[i] != samples[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.TestingRun(t)
}
