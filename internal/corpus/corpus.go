// Package corpus discovers and selects the benchmark query files.
package corpus

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spaolacci/murmur3"

	benchErrors "github.com/pgduckdb/tpchbench/internal/errors"
)

// Query is one benchmark query file.
type Query struct {
	// Name is the upper-case file stem, e.g. "Q02"
	Name string
	// File is the base file name, e.g. "q02.sql"
	File string
	// Path is the full path on disk
	Path string
}

// Load reads the query text with surrounding whitespace removed.
func (q Query) Load() (string, error) {
	data, err := os.ReadFile(q.Path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Corpus is an ordered set of query files.
type Corpus struct {
	Dir     string
	Queries []Query
}

// Discover lists q*.sql files in dir, sorted by file name.
func Discover(dir string) (*Corpus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, benchErrors.NewConfigError(benchErrors.CodeMissingDirectory,
			fmt.Sprintf("queries directory %s not found", dir))
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "q") || !strings.HasSuffix(name, ".sql") {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil, benchErrors.NewConfigError(benchErrors.CodeEmptyCorpus,
			fmt.Sprintf("no query files found in %s", dir))
	}
	sort.Strings(files)

	c := &Corpus{Dir: dir, Queries: make([]Query, 0, len(files))}
	for _, f := range files {
		c.Queries = append(c.Queries, newQuery(dir, f))
	}
	return c, nil
}

func newQuery(dir, file string) Query {
	return Query{
		Name: strings.ToUpper(strings.TrimSuffix(file, ".sql")),
		File: file,
		Path: filepath.Join(dir, file),
	}
}

// FileForID maps a numeric id to its query file name, zero-padding to two
// digits: "2" becomes "q02.sql", "20" stays "q20.sql".
func FileForID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) < 2 {
		id = strings.Repeat("0", 2-len(id)) + id
	}
	return "q" + id + ".sql"
}

// Select returns the subset of the corpus named by ids, sorted by file name.
// An empty ids list selects everything. Unknown ids are skipped with a
// warning; if none resolve the result is a configuration error.
func (c *Corpus) Select(ids []string) (*Corpus, error) {
	if len(ids) == 0 {
		log.Info().Int("queries", len(c.Queries)).Msg("Found query files")
		return c, nil
	}

	byFile := make(map[string]Query, len(c.Queries))
	for _, q := range c.Queries {
		byFile[q.File] = q
	}

	seen := make(map[string]bool)
	var selected []Query
	for _, id := range ids {
		file := FileForID(id)
		q, ok := byFile[file]
		if !ok {
			log.Warn().Str("file", file).Str("dir", c.Dir).Msg("Query file not found")
			continue
		}
		if seen[file] {
			continue
		}
		seen[file] = true
		selected = append(selected, q)
	}
	if len(selected) == 0 {
		return nil, benchErrors.NewConfigError(benchErrors.CodeNoQueriesSelected,
			"no valid query files found from the specified queries")
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].File < selected[j].File })

	names := make([]string, len(selected))
	for i, q := range selected {
		names[i] = q.Name
	}
	log.Info().Int("queries", len(selected)).Str("selected", strings.Join(names, ", ")).Msg("Running selected queries")

	return &Corpus{Dir: c.Dir, Queries: selected}, nil
}

// Names returns the query names in order.
func (c *Corpus) Names() []string {
	names := make([]string, len(c.Queries))
	for i, q := range c.Queries {
		names[i] = q.Name
	}
	return names
}

// Fingerprint hashes the names and texts of every query so runs over
// different corpora can be told apart. Unreadable files hash by name only.
func (c *Corpus) Fingerprint() string {
	h := murmur3.New128()
	for _, q := range c.Queries {
		h.Write([]byte(q.Name))
		h.Write([]byte{0})
		if text, err := q.Load(); err == nil {
			h.Write([]byte(text))
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
