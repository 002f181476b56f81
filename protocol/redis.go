package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"argus/detect"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	payloadField        = "payload"
	defaultStreamPrefix = "argus"
	defaultBlock        = time.Second
	closeTimeout        = 5 * time.Second
)

// RedisOptions configures the Redis Streams transport.
//
// Worker N reads <Prefix>:w:N:in and writes <Prefix>:w:N:out. Each side
// starts reading after the newest entry present when it attaches, so a
// remote worker must be serving before the coordinator dials it.
type RedisOptions struct {
	Prefix string
	// Block bounds each XREAD call; reads loop until the context ends.
	Block time.Duration
	// MaxLen trims streams approximately on every XADD. Zero disables it.
	MaxLen int64
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.Prefix == "" {
		o.Prefix = defaultStreamPrefix
	}
	if o.Block <= 0 {
		o.Block = defaultBlock
	}
	return o
}

// StreamKeys returns the inbound and outbound stream of a worker.
func StreamKeys(prefix string, worker int) (in, out string) {
	return fmt.Sprintf("%s:w:%d:in", prefix, worker), fmt.Sprintf("%s:w:%d:out", prefix, worker)
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

func packEnvelope(env envelope) ([]byte, error) {
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", env.Kind, err)
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func unpackEnvelope(data []byte) (envelope, error) {
	var env envelope
	_, dec, err := zstdCodec()
	if err != nil {
		return env, err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return env, fmt.Errorf("failed to decompress message: %w", err)
	}
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("failed to decode message: %w", err)
	}
	return env, nil
}

// redisLink is one direction pair over two streams.
type redisLink struct {
	client     *redis.Client
	sendStream string
	recvStream string
	lastID     string
	opts       RedisOptions
}

func newRedisLink(ctx context.Context, client *redis.Client, send, recv string, opts RedisOptions) (*redisLink, error) {
	last, err := client.XRevRangeN(ctx, recv, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read tail of stream %s: %w", recv, err)
	}
	lastID := "0-0"
	if len(last) > 0 {
		lastID = last[0].ID
	}
	return &redisLink{client: client, sendStream: send, recvStream: recv, lastID: lastID, opts: opts}, nil
}

func (l *redisLink) send(ctx context.Context, env envelope) error {
	data, err := packEnvelope(env)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: l.sendStream,
		Values: map[string]interface{}{payloadField: data},
	}
	if l.opts.MaxLen > 0 {
		args.MaxLen = l.opts.MaxLen
		args.Approx = true
	}
	if err := l.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to %s: %w", l.sendStream, err)
	}
	return nil
}

func (l *redisLink) recv(ctx context.Context) (envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return envelope{}, err
		}
		streams, err := l.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{l.recvStream, l.lastID},
			Count:   1,
			Block:   l.opts.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return envelope{}, ctxErr
			}
			return envelope{}, fmt.Errorf("failed to XREAD from %s: %w", l.recvStream, err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}

		msg := streams[0].Messages[0]
		l.lastID = msg.ID
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			return envelope{}, fmt.Errorf("message %s on %s has no payload", msg.ID, l.recvStream)
		}
		return unpackEnvelope([]byte(payload))
	}
}

// RedisDialer reaches long-running workers through Redis Streams. The
// partition index is the worker id. Every Dial opens a new session id; the
// worker resets its state when it sees one, and replies tagged with another
// id are skipped.
type RedisDialer struct {
	Client  *redis.Client
	Options RedisOptions
	Logger  *zap.SugaredLogger
}

func (d *RedisDialer) Name() string { return "redis" }

func (d *RedisDialer) Dial(ctx context.Context, partition int) (CoordinatorConn, error) {
	opts := d.Options.withDefaults()
	in, out := StreamKeys(opts.Prefix, partition)
	link, err := newRedisLink(ctx, d.Client, in, out, opts)
	if err != nil {
		return nil, err
	}
	session := uuid.NewString()
	d.Logger.Debugw("Attached to redis worker", "partition", partition, "session", session, "in", in, "out", out)
	return &redisCoordinatorConn{link: link, session: session}, nil
}

type redisCoordinatorConn struct {
	link    *redisLink
	session string
	done    bool
}

func (c *redisCoordinatorConn) Send(ctx context.Context, msg ToWorker) error {
	env, err := wrapToWorker(msg)
	if err != nil {
		return err
	}
	env.Session = c.session
	if err := c.link.send(ctx, env); err != nil {
		return err
	}
	if _, ok := msg.(Shutdown); ok {
		c.done = true
	}
	return nil
}

func (c *redisCoordinatorConn) Recv(ctx context.Context) (ToCoordinator, error) {
	for {
		env, err := c.link.recv(ctx)
		if err != nil {
			return nil, err
		}
		if env.Session != c.session {
			continue
		}
		return unwrapToCoordinator(env)
	}
}

// Close sends Shutdown if the session never did, so the worker drops the
// rules and records it holds. The streams outlive the session.
func (c *redisCoordinatorConn) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	env, err := wrapToWorker(Shutdown{})
	if err != nil {
		return err
	}
	env.Session = c.session
	return c.link.send(ctx, env)
}

// RedisWorker is a worker attached to its streams. Attaching fixes the
// read position, so messages sent after AttachRedisWorker returns are seen.
type RedisWorker struct {
	id     int
	link   *redisLink
	logger *zap.SugaredLogger
}

func AttachRedisWorker(ctx context.Context, client *redis.Client, opts RedisOptions, workerID int, logger *zap.SugaredLogger) (*RedisWorker, error) {
	opts = opts.withDefaults()
	in, out := StreamKeys(opts.Prefix, workerID)
	link, err := newRedisLink(ctx, client, out, in, opts)
	if err != nil {
		return nil, err
	}
	logger.Infow("Redis worker ready", "worker_id", workerID, "in", in, "out", out)
	return &RedisWorker{id: workerID, link: link, logger: logger}, nil
}

// Serve runs sessions until ctx ends. A message carrying a new session id
// starts a fresh state machine, even if the previous session never shut
// down. Messages for a session that already shut down are ignored. With
// once set, Serve returns after the first session that shuts down.
func (r *RedisWorker) Serve(ctx context.Context, engine *detect.Engine, once bool) error {
	var (
		w        *Worker
		session  string
		finished string
	)
	for {
		env, err := r.link.recv(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker receive failed: %w", err)
		}
		if w == nil && finished != "" && env.Session == finished {
			continue
		}
		if w == nil || env.Session != session {
			if w != nil {
				r.logger.Warnw("Session abandoned without shutdown", "worker_id", r.id, "session", session)
			}
			w = NewWorker(engine, r.logger)
			session = env.Session
		}

		var reply ToCoordinator
		msg, err := unwrapToWorker(env)
		if err != nil {
			reply = ErrorMessage{Message: err.Error()}
		} else {
			reply = w.Handle(msg)
		}
		if reply != nil {
			if err := r.reply(ctx, session, reply); err != nil {
				return fmt.Errorf("worker send failed: %w", err)
			}
		}

		if w.Stopped() {
			r.logger.Debugw("Worker session finished", "worker_id", r.id, "session", session)
			if once {
				return nil
			}
			w, finished = nil, session
		}
	}
}

func (r *RedisWorker) reply(ctx context.Context, session string, msg ToCoordinator) error {
	env, err := wrapToCoordinator(msg)
	if err != nil {
		return err
	}
	env.Session = session
	return r.link.send(ctx, env)
}
