// Package store persists experiment rows as CSV tables that are rewritten in
// full after every append, so the file on disk always reflects the last
// completed unit of work.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mwiater/stochprobe/internal/logging"
)

// ErrDuplicateKey is returned when a row with an already persisted key is appended.
var ErrDuplicateKey = errors.New("duplicate row key")

// Codec maps a row type to and from CSV records.
type Codec[R any] struct {
	Header []string
	Encode func(R) []string
	Decode func([]string) (R, error)
	// Key returns the identity of a row; keys are unique within a table.
	Key func(R) string
}

// Table is an ordered, keyed set of rows backed by one CSV file.
type Table[R any] struct {
	path     string
	codec    Codec[R]
	rows     []R
	keys     map[string]struct{}
	// unusable marks a file that failed to load; it is set aside before the
	// first rewrite instead of being overwritten.
	unusable bool
}

// Open loads the table at path. A missing, empty or unreadable-as-CSV file
// yields an empty table; the latter two are logged. An unreadable file is
// renamed to <path>.corrupt-<timestamp> by the first Append. Other I/O errors
// are returned.
func Open[R any](path string, codec Codec[R]) (*Table[R], error) {
	t := &Table[R]{path: path, codec: codec, keys: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := t.decodeAll(f)
	if err != nil {
		var corrupt *corruptError
		if errors.As(err, &corrupt) {
			logging.LogWarn("[STORE] %s is unusable (%v); starting from empty", path, corrupt.err)
			t.unusable = true
			return t, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		logging.LogWarn("[STORE] %s holds no rows; starting from empty", path)
	}

	for _, row := range rows {
		key := codec.Key(row)
		if _, dup := t.keys[key]; dup {
			logging.LogWarn("[STORE] %s repeats key %q; keeping first occurrence", path, key)
			continue
		}
		t.keys[key] = struct{}{}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

type corruptError struct{ err error }

func (e *corruptError) Error() string { return e.err.Error() }

func (t *Table[R]) decodeAll(r io.Reader) ([]R, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(t.codec.Header)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, classifyReadErr(err)
	}
	if !slices.Equal(header, t.codec.Header) {
		return nil, &corruptError{fmt.Errorf("unexpected header %v", header)}
	}

	var rows []R
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyReadErr(err)
		}
		row, err := t.codec.Decode(record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, &corruptError{fmt.Errorf("line %d: %w", line, err)}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func classifyReadErr(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &corruptError{err}
	}
	return err
}

// Path returns the backing file path.
func (t *Table[R]) Path() string { return t.path }

// Len returns the number of rows.
func (t *Table[R]) Len() int { return len(t.rows) }

// Rows returns a copy of the rows in insertion order.
func (t *Table[R]) Rows() []R { return slices.Clone(t.rows) }

// KeyOf returns the key of row under the table's codec.
func (t *Table[R]) KeyOf(row R) string { return t.codec.Key(row) }

// Contains reports whether a row with key has been persisted.
func (t *Table[R]) Contains(key string) bool {
	_, ok := t.keys[key]
	return ok
}

// Append adds row and rewrites the backing file. The in-memory table is left
// unchanged when the write fails.
func (t *Table[R]) Append(row R) error {
	key := t.codec.Key(row)
	if t.Contains(key) {
		return fmt.Errorf("%w: %q in %s", ErrDuplicateKey, key, t.path)
	}
	next := append(slices.Clip(t.rows), row)
	if err := t.flush(next); err != nil {
		return err
	}
	t.rows = next
	t.keys[key] = struct{}{}
	return nil
}

func (t *Table[R]) flush(rows []R) error {
	if t.unusable {
		if err := t.setAside(); err != nil {
			return err
		}
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, t.codec.Encode(row))
	}
	return WriteCSV(t.path, t.codec.Header, records)
}

func (t *Table[R]) setAside() error {
	dest := fmt.Sprintf("%s.corrupt-%s", t.path, time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(t.path, dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("set aside %s: %w", t.path, err)
	}
	logging.LogWarn("[STORE] moved unusable %s to %s", t.path, dest)
	t.unusable = false
	return nil
}

// WriteCSV atomically replaces path with header followed by records. The
// parent directory is created if needed.
func WriteCSV(path string, header []string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// DerivedPath names a file produced from input, e.g. ("data/latency.csv",
// "buckets") -> "data/latency_buckets.csv".
func DerivedPath(input, suffix string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_" + suffix + ".csv"
}
