package exiftool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"photo-ingest/internal/logging"
)

// Extractor is the metadata-extraction collaborator. Implementations take
// a local temporary file and return a broad field/value map.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (map[string]any, error)
}

// Runner shells out to the exiftool binary.
type Runner struct {
	binary  string
	workDir string
}

// NewRunner creates a Runner that writes temporary files under workDir,
// creating the directory if needed. An empty binary means "exiftool" from
// PATH.
func NewRunner(binary, workDir string) (*Runner, error) {
	if binary == "" {
		binary = "exiftool"
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create exif work dir: %w", err)
	}
	return &Runner{binary: binary, workDir: workDir}, nil
}

// Extract writes data to a temp file, runs exiftool against it and returns
// the decoded field map. The temp file is removed whether or not the tool
// succeeds.
func (r *Runner) Extract(ctx context.Context, data []byte) (map[string]any, error) {
	tempPath := filepath.Join(r.workDir, uuid.NewString()+".img")
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write exif temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove exif temp file %s: %v", tempPath, err)
		}
	}()

	// -n keeps numeric values numeric (GPS as decimal degrees, not DMS
	// strings); -G0 is deliberately omitted so tag names stay flat.
	cmd := exec.CommandContext(ctx, r.binary, "-json", "-n", tempPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exiftool failed: %v, stderr: %s", err, stderr.String())
	}

	var records []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &records); err != nil {
		return nil, fmt.Errorf("failed to decode exiftool output: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("exiftool produced no records")
	}
	return records[0], nil
}
