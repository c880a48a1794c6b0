package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists files produced by sketch runs, addressed by run id and a
// relative path inside the run.
type Store interface {
	Put(ctx context.Context, runID, path string, content []byte) error
	Get(ctx context.Context, runID, path string) ([]byte, error)
	GetURL(ctx context.Context, runID, path string) (string, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// OutputLog is the path of the captured stdout/stderr of a run.
const OutputLog = "output.log"

var (
	ErrNotFound = errors.New("artifact not found")
	ErrStoreNil = errors.New("artifact store is nil")
	errNoRunID  = errors.New("run_id is required")
	errNoPath   = errors.New("path is required")
	errBadRunID = errors.New("run_id must not contain '/'")
)

// objectKey validates runID and path and joins them as "<runID>/<path>".
func objectKey(runID, path string) (string, error) {
	runID = strings.TrimSpace(runID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	switch {
	case runID == "":
		return "", errNoRunID
	case strings.Contains(runID, "/"):
		return "", errBadRunID
	case path == "":
		return "", errNoPath
	case strings.Contains(path, ".."):
		return "", fmt.Errorf("path %q escapes the run", path)
	}
	return runID + "/" + path, nil
}

func runPrefix(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", errNoRunID
	}
	if strings.Contains(runID, "/") {
		return "", errBadRunID
	}
	return runID + "/", nil
}
