package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// Format describes what a recognition command prints on stdout.
type Format string

const (
	// FormatText commands print the recognized text and nothing else.
	FormatText Format = "text"
	// FormatJSON commands may print diagnostics, then end with one JSON
	// document {"success": bool, "text": string, "error": string}.
	FormatJSON Format = "json"

	// PathPlaceholder in an argument is replaced with the image path. Without
	// it the path is appended as the last argument.
	PathPlaceholder = "{path}"

	DefaultTimeout = 60 * time.Second
)

// DefaultCommand runs tesseract and prints plain text.
var DefaultCommand = []string{"tesseract", PathPlaceholder, "stdout"}

// ExecRecognizer runs an external program per image.
type ExecRecognizer struct {
	Name    string
	Args    []string
	Format  Format
	Timeout time.Duration
}

// NewExecRecognizer builds a recognizer from argv (program first).
func NewExecRecognizer(argv []string, format Format, timeout time.Duration) (*ExecRecognizer, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("%w: empty command", ErrUnavailable)
	}
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON:
	default:
		return nil, fmt.Errorf("unknown ocr output format %q (want text or json)", format)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRecognizer{
		Name:    argv[0],
		Args:    append([]string(nil), argv[1:]...),
		Format:  format,
		Timeout: timeout,
	}, nil
}

func (r *ExecRecognizer) args(path string) []string {
	out := make([]string, 0, len(r.Args)+1)
	substituted := false
	for _, a := range r.Args {
		if strings.Contains(a, PathPlaceholder) {
			a = strings.ReplaceAll(a, PathPlaceholder, path)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, path)
	}
	return out
}

func (r *ExecRecognizer) Recognize(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath(r.Name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, r.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, r.args(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit stdout must not hold Run open after a kill.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		eerr := &ExtractionError{Path: path, ExitCode: -1, Stderr: stderr.String(), Err: err}
		if ctx.Err() != nil {
			eerr.Err = ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			eerr.ExitCode = exitErr.ExitCode()
		}
		return "", eerr
	}

	if r.Format == FormatJSON {
		return parseJSONOutput(path, stdout.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

type jsonOutput struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

// parseJSONOutput decodes the last JSON document in out. Lines before it are
// diagnostics. Malformed JSON is repaired before giving up.
func parseJSONOutput(path, out string) (string, error) {
	doc := lastJSONDocument(out)
	if doc == "" {
		return "", &ExtractionError{Path: path, Err: errors.New("no JSON document in output")}
	}

	var res jsonOutput
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(doc)
		if rerr != nil {
			return "", &ExtractionError{Path: path, Err: fmt.Errorf("decode output: %w", err)}
		}
		if err := json.Unmarshal([]byte(repaired), &res); err != nil {
			return "", &ExtractionError{Path: path, Err: fmt.Errorf("decode repaired output: %w", err)}
		}
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "recognizer reported failure"
		}
		return "", &ExtractionError{Path: path, Err: errors.New(msg)}
	}
	return strings.TrimSpace(res.Text), nil
}

func lastJSONDocument(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "{") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return ""
}
