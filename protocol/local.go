package protocol

import (
	"context"
	"io"
	"sync"
	"time"

	"argus/detect"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

const localCloseWait = 5 * time.Second

// LocalDialer runs each worker as a goroutine in this process, linked by
// channels. Messages are passed by value without encoding.
type LocalDialer struct {
	Engine *detect.Engine
	Logger *zap.SugaredLogger
}

func (d *LocalDialer) Name() string { return "local" }

func (d *LocalDialer) Dial(ctx context.Context, partition int) (CoordinatorConn, error) {
	link := &localLink{
		toWorker: make(chan ToWorker, 4),
		toCoord:  make(chan ToCoordinator, 4),
		closed:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
	logger := d.Logger.With("partition", partition)
	worker := NewWorker(d.Engine, logger)

	go func() {
		defer close(link.exited)
		defer goroutine.RecoverAsError("local-worker", logger, &link.exitErr)
		link.exitErr = worker.Serve(context.Background(), localWorkerSide{link})
	}()

	return localCoordinatorSide{link}, nil
}

type localLink struct {
	toWorker  chan ToWorker
	toCoord   chan ToCoordinator
	closed    chan struct{}
	closeOnce sync.Once
	exited    chan struct{}
	exitErr   error
}

type localCoordinatorSide struct{ *localLink }

func (l localCoordinatorSide) Send(ctx context.Context, msg ToWorker) error {
	select {
	case <-l.closed:
		return ErrConnClosed
	default:
	}
	select {
	case l.toWorker <- msg:
		return nil
	case <-l.exited:
		return ErrWorkerExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l localCoordinatorSide) Recv(ctx context.Context) (ToCoordinator, error) {
	select {
	case msg := <-l.toCoord:
		return msg, nil
	case <-l.exited:
		select {
		case msg := <-l.toCoord:
			return msg, nil
		default:
		}
		if l.exitErr != nil {
			return nil, l.exitErr
		}
		return nil, ErrWorkerExited
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l localCoordinatorSide) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	select {
	case <-l.exited:
	case <-time.After(localCloseWait):
	}
	return nil
}

type localWorkerSide struct{ *localLink }

func (l localWorkerSide) Recv(ctx context.Context) (ToWorker, error) {
	select {
	case msg := <-l.toWorker:
		return msg, nil
	case <-l.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l localWorkerSide) Send(ctx context.Context, msg ToCoordinator) error {
	select {
	case l.toCoord <- msg:
		return nil
	case <-l.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
