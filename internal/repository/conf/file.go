package conf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/broadinstitute/install-gcs-connector/internal/logger"
)

// Setting is a single space-separated key-value pair in a Spark
// properties file.
type Setting struct {
	Key   string
	Value string
}

// Line renders the setting in its on-disk form.
func (s Setting) Line() string {
	return s.Key + " " + s.Value
}

// Repository defines persistence operations for a line-oriented Spark
// properties file.
type Repository interface {
	Load(ctx context.Context) ([]string, error)
	Merge(ctx context.Context, desired []Setting) error
}

// FileRepository merges settings into a properties file on disk, keeping
// unrelated lines verbatim.
type FileRepository struct {
	// path is the filesystem location of the properties file.
	path string
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// defaultPermissions applies to a freshly created properties file; Spark
// reads it as an unprivileged user.
const defaultPermissions os.FileMode = 0o644

// NewFileRepository creates a repository for the properties file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the file's lines in order. A missing file yields no lines.
func (r *FileRepository) Load(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.readLines()
}

// Merge rewrites the file so that every desired setting appears exactly
// once, in caller order, at the top of the file. Existing lines whose
// first whitespace-delimited token matches a desired key are dropped in
// favor of the canonical desired line; every other line is kept verbatim
// in its original relative order.
func (r *FileRepository) Merge(ctx context.Context, desired []Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readLines()
	if err != nil {
		return err
	}

	merged := MergeLines(desired, existing)

	logger.DebugKV(ctx, "Rewriting properties file", "path", r.path, "lines", len(merged))

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	contents := strings.Join(merged, "\n") + "\n"
	if err := os.WriteFile(r.path, []byte(contents), defaultPermissions); err != nil {
		return fmt.Errorf("write properties file: %w", err)
	}

	return nil
}

// MergeLines combines desired settings with existing file lines per the
// Merge contract. It is exposed for direct use in tests and dry runs.
func MergeLines(desired []Setting, existing []string) []string {
	keys := make(map[string]struct{}, len(desired))
	for _, setting := range desired {
		keys[setting.Key] = struct{}{}
	}

	merged := make([]string, 0, len(desired)+len(existing))
	for _, setting := range desired {
		merged = append(merged, setting.Line())
	}

	for _, line := range existing {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if _, found := keys[fields[0]]; found {
				continue
			}
		}

		merged = append(merged, line)
	}

	return merged
}

// readLines loads the file's lines, treating a missing file as empty.
func (r *FileRepository) readLines() ([]string, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read properties file: %w", err)
	}

	lines := strings.Split(string(contents), "\n")

	// A trailing newline produces one empty trailing element, not a line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines, nil
}
