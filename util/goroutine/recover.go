package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// stackBufferSize bounds the captured stack trace.
const stackBufferSize = 4096

// Recover logs a panic in a goroutine and swallows it.
// With a nil logger the panic goes to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		report(name, r, logger)
	}
}

// RecoverAsError converts a panic into an error stored in *errp, so a
// goroutine that must report an outcome still reports one.
//
//	defer goroutine.RecoverAsError("partition-3", logger, &err)
func RecoverAsError(name string, logger *zap.SugaredLogger, errp *error) {
	if r := recover(); r != nil {
		report(name, r, logger)
		if errp != nil {
			*errp = fmt.Errorf("panic in %s: %v", name, r)
		}
	}
}

func report(name string, r interface{}, logger *zap.SugaredLogger) {
	buf := make([]byte, stackBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n", name, r, string(buf[:n]))
}
