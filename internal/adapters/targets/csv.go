// Package targets reads the list of portals to scrape from a CSV file and
// records per-target failures back into it.
package targets

import (
	"bytes"
	"encoding/csv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

const (
	colURL   = "website_url"
	colName  = "county_name"
	colError = "error_message"
)

// File is a targets CSV with at least website_url and county_name columns.
// Header names are matched after lowercasing and turning spaces into "_".
type File struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// Open returns the targets file at path.
func Open(fs afero.Fs, path string) *File {
	return &File{fs: fs, path: path}
}

// Load returns the targets in file order. Rows without a URL or name are
// skipped.
func (f *File) Load() ([]domain.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	header, rows, err := f.read()
	if err != nil {
		return nil, err
	}
	urlIdx, nameIdx := index(header, colURL), index(header, colName)
	if urlIdx < 0 || nameIdx < 0 {
		return nil, eris.Errorf("%s must have %s and %s columns, found %v", f.path, colURL, colName, header)
	}

	var out []domain.Target
	for _, row := range rows {
		url, name := field(row, urlIdx), field(row, nameIdx)
		if url == "" || name == "" {
			continue
		}
		out = append(out, domain.Target{Name: name, URL: url})
	}
	return out, nil
}

// RecordError sets the error_message of the target's row, adding the column
// or the row when missing, and rewrites the file in place. An empty message
// clears a previous error.
func (f *File) RecordError(target, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	header, rows, err := f.read()
	if err != nil {
		return err
	}
	nameIdx := index(header, colName)
	if nameIdx < 0 {
		header = append(header, colName)
		nameIdx = len(header) - 1
	}
	errIdx := index(header, colError)
	if errIdx < 0 {
		header = append(header, colError)
		errIdx = len(header) - 1
	}

	found := false
	for i, row := range rows {
		for len(row) < len(header) {
			row = append(row, "")
		}
		if strings.EqualFold(strings.TrimSpace(row[nameIdx]), strings.TrimSpace(target)) {
			row[errIdx] = message
			found = true
		}
		rows[i] = row
	}
	if !found {
		row := make([]string, len(header))
		row[nameIdx] = target
		row[errIdx] = message
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "write rows")
	}
	if err := afero.WriteFile(f.fs, f.path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "rewrite %s", f.path)
	}
	return nil
}

// read returns the raw header (names as written) and the data rows. A
// missing file reads as empty.
func (f *File) read() ([]string, [][]string, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if ok, _ := afero.Exists(f.fs, f.path); !ok {
			return nil, nil, nil
		}
		return nil, nil, eris.Wrapf(err, "read %s", f.path)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "parse %s", f.path)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func normalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

func index(header []string, name string) int {
	for i, h := range header {
		if normalizeHeader(h) == name {
			return i
		}
	}
	return -1
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
