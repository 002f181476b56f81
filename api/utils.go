package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const maxErrorMessageLength = 500

var (
	errInvalidBatchID = errors.New("invalid batch id")

	batchIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	connStringRe   = regexp.MustCompile(`(?:redis|rediss)://[^\s"']+`)
)

type errorResponse struct {
	Error string `json:"error"`
}

// sanitizeErrorMessage strips connection strings and caps the length of
// messages sent to clients.
func sanitizeErrorMessage(message string) string {
	message = connStringRe.ReplaceAllString(message, "[CONNECTION]")
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength-3] + "..."
	}
	return message
}

// writeError logs the full error and answers {"error": message}. The
// cause is not sent to the client.
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		if err != nil {
			logger.Warnw(message, "error", err.Error(), "status_code", statusCode)
		} else {
			logger.Debugw(message, "status_code", statusCode)
		}
	}
	writeJSON(w, errorResponse{Error: sanitizeErrorMessage(message)}, statusCode, logger)
}

// resolveBatchPath maps a batch id to a file inside dir, rejecting ids
// that could escape it.
func resolveBatchPath(dir, batchID string) (string, error) {
	if !batchIDPattern.MatchString(batchID) || strings.Contains(batchID, "..") {
		return "", fmt.Errorf("%w: %q", errInvalidBatchID, batchID)
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve batch directory: %w", err)
	}
	path := filepath.Join(base, batchID)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel != batchID {
		return "", fmt.Errorf("%w: %q", errInvalidBatchID, batchID)
	}
	return path, nil
}
