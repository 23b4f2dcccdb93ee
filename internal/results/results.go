// Package results reads and writes the four-column results files.
package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
	"github.com/pgduckdb/tpchbench/pkg/types"
)

// Column names in file order.
const (
	ColumnName   = "Transaction Name"
	ColumnMicros = "Latency (microseconds)"
	ColumnMS     = "Latency (ms)"
	ColumnRows   = "Rows"
)

// Header is the fixed header row.
var Header = []string{ColumnName, ColumnMicros, ColumnMS, ColumnRows}

// FileName returns tpch_<ts>_<engine>_<thermal>.raw.csv.
func FileName(unixTS int64, engineName, thermal string) string {
	return fmt.Sprintf("tpch_%d_%s_%s.raw.csv", unixTS, engineName, thermal)
}

// Write stores samples under dir/name, creating dir on demand, and returns
// the file path.
func Write(dir, name string, samples []types.Sample) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed,
			fmt.Sprintf("create results directory %s", dir), err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed,
			fmt.Sprintf("create %s", path), err)
	}

	if err := Encode(f, samples); err != nil {
		f.Close()
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed,
			fmt.Sprintf("write %s", path), err)
	}
	if err := f.Close(); err != nil {
		return "", benchErrors.NewResultsError(benchErrors.CodeWriteFailed,
			fmt.Sprintf("close %s", path), err)
	}
	return path, nil
}

// Encode writes the header and one row per sample to w.
func Encode(w io.Writer, samples []types.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, s := range samples {
		record := []string{
			s.QueryName,
			formatMicros(s),
			formatFloat(s.LatencyMS),
			strconv.FormatInt(s.Rows, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Timeouts and failures are integers in the microseconds column.
func formatMicros(s types.Sample) string {
	if s.Status != types.StatusOK {
		return strconv.FormatInt(int64(s.LatencyMicros()), 10)
	}
	return formatFloat(s.LatencyMicros())
}

// Read loads a results file.
func Read(path string) ([]types.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, benchErrors.NewResultsError(benchErrors.CodeResultsMissing,
			fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	samples, err := Decode(f)
	if err != nil {
		return nil, benchErrors.NewResultsError(benchErrors.CodeMalformedFile,
			fmt.Sprintf("parse %s", path), err)
	}
	return samples, nil
}

// Decode parses a results file. Columns are located by header name. When
// the milliseconds column is absent it is derived from microseconds. The
// failure sentinel decodes as a failed sample; everything else is OK since
// the file does not record timeouts.
func Decode(r io.Reader) ([]types.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	nameCol, ok := idx[ColumnName]
	if !ok {
		return nil, fmt.Errorf("missing %q column", ColumnName)
	}
	msCol, hasMS := idx[ColumnMS]
	microsCol, hasMicros := idx[ColumnMicros]
	if !hasMS && !hasMicros {
		return nil, fmt.Errorf("missing latency column")
	}
	rowsCol, hasRows := idx[ColumnRows]

	var samples []types.Sample
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		field := func(col int) (string, error) {
			if col >= len(record) {
				return "", fmt.Errorf("line %d: expected at least %d fields, got %d", line, col+1, len(record))
			}
			return strings.TrimSpace(record[col]), nil
		}

		name, err := field(nameCol)
		if err != nil {
			return nil, err
		}

		var ms float64
		if hasMS {
			v, err := field(msCol)
			if err != nil {
				return nil, err
			}
			if ms, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("line %d: bad latency %q", line, v)
			}
		} else {
			v, err := field(microsCol)
			if err != nil {
				return nil, err
			}
			micros, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad latency %q", line, v)
			}
			ms = micros / 1000
		}

		var rows int64
		if hasRows {
			v, err := field(rowsCol)
			if err != nil {
				return nil, err
			}
			if rows, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("line %d: bad row count %q", line, v)
			}
		}

		var s types.Sample
		if ms == types.SentinelFailedMS {
			s = types.FailedSample(name, "")
		} else {
			s = types.Sample{QueryName: name, LatencyMS: ms, Rows: rows, Status: types.StatusOK}
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// TotalMS sums the latencies of samples.
func TotalMS(samples []types.Sample) float64 {
	var total float64
	for _, s := range samples {
		total += s.LatencyMS
	}
	return total
}
