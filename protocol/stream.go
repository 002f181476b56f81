package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// streamConn carries envelopes over a byte stream. msgpack documents are
// self-delimiting, so no extra framing is needed.
type streamConn struct {
	mu  sync.Mutex
	bw  *bufio.Writer
	enc *msgpack.Encoder

	incoming chan decoded
	done     chan struct{}
	doneOnce sync.Once
}

type decoded struct {
	env envelope
	err error
}

func newStreamConn(r io.Reader, w io.Writer) *streamConn {
	bw := bufio.NewWriter(w)
	c := &streamConn{
		bw:       bw,
		enc:      msgpack.NewEncoder(bw),
		incoming: make(chan decoded, 1),
		done:     make(chan struct{}),
	}
	go c.readLoop(msgpack.NewDecoder(bufio.NewReader(r)))
	return c
}

func (c *streamConn) readLoop(dec *msgpack.Decoder) {
	defer close(c.incoming)
	for {
		var env envelope
		err := dec.Decode(&env)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			select {
			case c.incoming <- decoded{err: err}:
			case <-c.done:
			}
			return
		}
		select {
		case c.incoming <- decoded{env: env}:
		case <-c.done:
			return
		}
	}
}

func (c *streamConn) send(ctx context.Context, env envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	if err := c.enc.Encode(&env); err != nil {
		return fmt.Errorf("failed to encode %s message: %w", env.Kind, err)
	}
	return c.bw.Flush()
}

func (c *streamConn) recv(ctx context.Context) (envelope, error) {
	select {
	case d, ok := <-c.incoming:
		if !ok {
			return envelope{}, io.EOF
		}
		return d.env, d.err
	case <-c.done:
		return envelope{}, ErrConnClosed
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	}
}

func (c *streamConn) stop() {
	c.doneOnce.Do(func() { close(c.done) })
}

// StreamWorkerConn is the worker end of a byte-stream link, typically the
// worker process's stdin and stdout.
type StreamWorkerConn struct {
	c *streamConn
}

func NewStreamWorkerConn(r io.Reader, w io.Writer) *StreamWorkerConn {
	return &StreamWorkerConn{c: newStreamConn(r, w)}
}

func (s *StreamWorkerConn) Recv(ctx context.Context) (ToWorker, error) {
	env, err := s.c.recv(ctx)
	if err != nil {
		return nil, err
	}
	return unwrapToWorker(env)
}

func (s *StreamWorkerConn) Send(ctx context.Context, msg ToCoordinator) error {
	env, err := wrapToCoordinator(msg)
	if err != nil {
		return err
	}
	return s.c.send(ctx, env)
}

func (s *StreamWorkerConn) Close() error {
	s.c.stop()
	return nil
}

// StreamCoordinatorConn is the coordinator end of a byte-stream link.
// onClose, when set, runs once after the stream is stopped.
type StreamCoordinatorConn struct {
	c       *streamConn
	onClose func() error
	once    sync.Once
	err     error
}

func NewStreamCoordinatorConn(r io.Reader, w io.Writer, onClose func() error) *StreamCoordinatorConn {
	return &StreamCoordinatorConn{c: newStreamConn(r, w), onClose: onClose}
}

func (s *StreamCoordinatorConn) Send(ctx context.Context, msg ToWorker) error {
	env, err := wrapToWorker(msg)
	if err != nil {
		return err
	}
	return s.c.send(ctx, env)
}

func (s *StreamCoordinatorConn) Recv(ctx context.Context) (ToCoordinator, error) {
	env, err := s.c.recv(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrWorkerExited
		}
		return nil, err
	}
	return unwrapToCoordinator(env)
}

func (s *StreamCoordinatorConn) Close() error {
	s.once.Do(func() {
		s.c.stop()
		if s.onClose != nil {
			s.err = s.onClose()
		}
	})
	return s.err
}
