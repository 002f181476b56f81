package protocol

import (
	"context"
	"errors"
)

var (
	// ErrConnClosed is returned after Close on either end.
	ErrConnClosed = errors.New("protocol connection closed")
	// ErrWorkerExited is returned when the worker side went away.
	ErrWorkerExited = errors.New("worker exited")
)

// CoordinatorConn is the coordinator's end of a link to one worker.
type CoordinatorConn interface {
	Send(ctx context.Context, msg ToWorker) error
	Recv(ctx context.Context) (ToCoordinator, error)
	Close() error
}

// WorkerConn is the worker's end of the link. Recv returns io.EOF when the
// coordinator has closed the link.
type WorkerConn interface {
	Recv(ctx context.Context) (ToWorker, error)
	Send(ctx context.Context, msg ToCoordinator) error
}

// Dialer opens a link to a fresh worker for one partition.
type Dialer interface {
	Dial(ctx context.Context, partition int) (CoordinatorConn, error)
	Name() string
}
