package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// UploadError reports a file that could not be read as a spreadsheet.
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("read %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("read upload: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrUnsupported indicates a file extension with no registered loader.
var ErrUnsupported = errors.New("unsupported spreadsheet format")

// LoadOptions selects what part of a file is read.
type LoadOptions struct {
	// Sheet names the workbook sheet to read; empty means the first sheet.
	Sheet string
	// Delimiter for CSV. If 0, auto-detects among ',', ';', '\t'.
	Delimiter rune
}

// Loader reads one file format into a Dataset.
type Loader interface {
	CanLoad(filename string) bool
	Load(name string, data []byte, opt LoadOptions) (*Dataset, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

func init() {
	Register(xlsxLoader{})
	Register(csvLoader{})
}

// Supported reports whether some registered loader accepts filename.
func Supported(filename string) bool {
	for _, l := range registry {
		if l.CanLoad(filename) {
			return true
		}
	}
	return false
}

// Load reads r fully and dispatches on the file extension of name.
// Every failure is returned as *UploadError.
func Load(name string, r io.Reader, opt LoadOptions) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &UploadError{File: name, Err: err}
	}
	for _, l := range registry {
		if !l.CanLoad(name) {
			continue
		}
		ds, err := l.Load(filepath.Base(name), data, opt)
		if err != nil {
			return nil, &UploadError{File: name, Err: err}
		}
		return ds, nil
	}
	return nil, &UploadError{File: name, Err: fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))}
}

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".xlsx" || ext == ".xlsm"
}

func (xlsxLoader) Load(name string, data []byte, opt LoadOptions) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet %q not found; available sheets: %s", opt.Sheet, strings.Join(sheets, ", "))
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRecords(name, rows), nil
}

type csvLoader struct{}

func (csvLoader) CanLoad(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".csv" || ext == ".tsv"
}

func (csvLoader) Load(name string, data []byte, opt LoadOptions) (*Dataset, error) {
	delim := opt.Delimiter
	if delim == 0 {
		if strings.EqualFold(filepath.Ext(name), ".tsv") {
			delim = '\t'
		} else {
			delim = sniffDelimiter(data)
		}
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comma = delim
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRecords(name, records), nil
}

// sniffDelimiter picks the most frequent candidate in the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// fromRecords treats the first record as the header. Blank header names become
// "Unnamed: <i>" and repeated names get ".1", ".2" suffixes.
func fromRecords(name string, records [][]string) *Dataset {
	if len(records) == 0 {
		return &Dataset{Name: name}
	}
	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}
	header := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		h := ""
		if i < len(records[0]) {
			h = strings.TrimSpace(records[0][i])
		}
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n+1)
		} else {
			seen[h] = 0
		}
		header[i] = h
	}
	return New(name, header, records[1:])
}
