package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSink persists the structured stream to --out. The format comes from
// --out-format or, when that is empty, from the file extension.
type FileSink struct {
	path string
	file *os.File
	enc  structured
}

func inferFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return formatJSON, nil
	case ".ndjson", ".jsonl":
		return formatNDJSON, nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		var err error
		if format, err = inferFormat(path); err != nil {
			return nil, err
		}
	}
	if !validFormat(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &FileSink{path: path, file: f, enc: structured{w: f, format: format}}, nil
}

func (s *FileSink) Write(v any) error { return s.enc.write(v) }

// Close writes any buffered records and closes the file. The first error wins.
func (s *FileSink) Close() error {
	err := s.enc.finish()
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
