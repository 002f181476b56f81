package ingest

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// SynthConfig controls the sample log generator.
type SynthConfig struct {
	Seed  int64
	Lines int
	Start time.Time
	// Span is the wall-clock range the background traffic is spread over.
	Span time.Duration
	// BurstRatio is the chance that a line starts an attack burst.
	BurstRatio float64
	// MalformedRatio is the chance that a line is deliberately corrupted.
	MalformedRatio float64
}

// DefaultSynthConfig is a day of traffic with occasional bursts.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		Seed:       1,
		Lines:      10000,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Span:       24 * time.Hour,
		BurstRatio: 0.01,
	}
}

var (
	synthLevels     = []string{"INFO", "WARN", "ERROR", "DEBUG"}
	synthNoise      = []string{"login_success", "http_request", "file_access", "config_change", "logout"}
	synthBurstKinds = []string{"login_failed", "port_scan", "http_request", "unauthorized_access"}
	synthPaths      = []string{"/", "/login", "/api/v1/items", "/admin", "/static/app.js"}
)

// Synthesizer produces well-formed sample log lines in timestamp order,
// with bursts that trip the built-in rule kinds. The output is a pure
// function of the config.
type Synthesizer struct {
	cfg   SynthConfig
	rng   *rand.Rand
	arena fastjson.Arena
}

func NewSynthesizer(cfg SynthConfig) *Synthesizer {
	if cfg.Span <= 0 {
		cfg.Span = time.Hour
	}
	if cfg.Start.IsZero() {
		cfg.Start = DefaultSynthConfig().Start
	}
	return &Synthesizer{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Lines generates the configured number of lines.
func (s *Synthesizer) Lines() []string {
	out := make([]string, 0, s.cfg.Lines)
	_ = s.emit(func(line string) error {
		out = append(out, line)
		return nil
	})
	return out
}

// WriteTo streams the lines to w, one per line.
func (s *Synthesizer) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	err := s.emit(func(line string) error {
		written, err := bw.WriteString(line + "\n")
		n += int64(written)
		return err
	})
	if err != nil {
		return n, err
	}
	return n, bw.Flush()
}

func (s *Synthesizer) emit(sink func(string) error) error {
	if s.cfg.Lines <= 0 {
		return nil
	}
	step := s.cfg.Span / time.Duration(s.cfg.Lines)
	if step <= 0 {
		step = time.Millisecond
	}
	now := s.cfg.Start

	for produced := 0; produced < s.cfg.Lines; {
		now = now.Add(time.Duration(s.rng.Int63n(int64(step) + 1)))

		if s.rng.Float64() < s.cfg.BurstRatio {
			ip := s.ip()
			user := s.user()
			kind := synthBurstKinds[s.rng.Intn(len(synthBurstKinds))]
			size := 5 + s.rng.Intn(11)
			for i := 0; i < size && produced < s.cfg.Lines; i++ {
				now = now.Add(time.Duration(1+s.rng.Intn(3)) * time.Second)
				if err := sink(s.line(now, "WARN", ip, user, kind)); err != nil {
					return err
				}
				produced++
			}
			continue
		}

		var line string
		if s.rng.Float64() < s.cfg.MalformedRatio {
			line = s.corrupt(now)
		} else {
			line = s.line(now, synthLevels[s.rng.Intn(len(synthLevels))], s.ip(), s.user(), synthNoise[s.rng.Intn(len(synthNoise))])
		}
		if err := sink(line); err != nil {
			return err
		}
		produced++
	}
	return nil
}

func (s *Synthesizer) line(ts time.Time, level, ip, user, event string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", ts.UTC().Format(time.RFC3339), level, ip)
	if user != "" {
		b.WriteString(" user_id=" + user)
	}
	b.WriteString(" event=" + event)
	b.WriteString(" details=")
	b.Write(s.details(event))
	return b.String()
}

func (s *Synthesizer) details(event string) []byte {
	s.arena.Reset()
	obj := s.arena.NewObject()
	switch event {
	case "login_failed":
		obj.Set("reason", s.arena.NewString("bad_password"))
	case "port_scan":
		obj.Set("port", s.arena.NewString(fmt.Sprintf("%d", 1+s.rng.Intn(65535))))
	case "http_request":
		obj.Set("method", s.arena.NewString("GET"))
		obj.Set("path", s.arena.NewString(synthPaths[s.rng.Intn(len(synthPaths))]))
	case "unauthorized_access":
		obj.Set("resource", s.arena.NewString("/admin"))
	}
	return obj.MarshalTo(nil)
}

func (s *Synthesizer) corrupt(ts time.Time) string {
	switch s.rng.Intn(3) {
	case 0:
		return fmt.Sprintf("%s INFO %s event=login_success", ts.UTC().Format(time.RFC3339), s.ip())
	case 1:
		return fmt.Sprintf("[not-a-time] [INFO] %s event=login_success", s.ip())
	default:
		return fmt.Sprintf("[%s] [INFO] ", ts.UTC().Format(time.RFC3339))
	}
}

func (s *Synthesizer) ip() string {
	if s.rng.Intn(2) == 0 {
		return fmt.Sprintf("192.168.1.%d", 1+s.rng.Intn(254))
	}
	return fmt.Sprintf("10.0.0.%d", 1+s.rng.Intn(254))
}

func (s *Synthesizer) user() string {
	if s.rng.Float64() < 0.2 {
		return ""
	}
	return fmt.Sprintf("user_%04d", 1+s.rng.Intn(99))
}
