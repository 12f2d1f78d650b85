package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
)

// Sink names a publishing destination.
type Sink string

const (
	SinkAudit    Sink = "audit"
	SinkRedis    Sink = "redis"
	SinkRabbitMQ Sink = "rabbitmq"
)

// Outcome is the published summary of a finished run.
type Outcome struct {
	RunID       string            `json:"run_id"`
	Cluster     string            `json:"cluster"`
	Program     string            `json:"program"`
	Account     string            `json:"account,omitempty"`
	Signature   string            `json:"signature,omitempty"`
	ExplorerURL string            `json:"explorer_url,omitempty"`
	Value       uint64            `json:"value"`
	Status      string            `json:"status"`
	ErrorCode   xerrors.Code      `json:"error_code,omitempty"`
	Error       string            `json:"error,omitempty"`
	Severity    xerrors.Severity  `json:"severity,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Publisher delivers outcomes to one sink.
type Publisher interface {
	Sink() Sink
	Publish(ctx context.Context, outcome Outcome) error
	Close() error
}

// Fanout delivers every outcome to all of its publishers.
type Fanout struct {
	publishers map[Sink]Publisher
}

// NewFanout indexes publishers by sink; a later publisher replaces an earlier
// one for the same sink.
func NewFanout(publishers ...Publisher) *Fanout {
	set := make(map[Sink]Publisher, len(publishers))
	for _, p := range publishers {
		if p == nil {
			continue
		}
		set[p.Sink()] = p
	}
	return &Fanout{publishers: set}
}

// Sinks lists the active sinks in name order.
func (f *Fanout) Sinks() []Sink {
	if f == nil {
		return nil
	}
	out := make([]Sink, 0, len(f.publishers))
	for s := range f.publishers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Publish sends outcome to every sink. A failing sink does not stop the
// others; all failures are joined under PUBLISH_FAILURE.
func (f *Fanout) Publish(ctx context.Context, outcome Outcome) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, sink := range f.Sinks() {
		if err := f.publishers[sink].Publish(ctx, outcome); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink, err))
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(xerrors.CodePublishFailure, errors.Join(errs...), "publish run outcome",
			xerrors.WithMetadata("run_id", outcome.RunID))
	}
	return nil
}

// Close closes every publisher.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, sink := range f.Sinks() {
		if err := f.publishers[sink].Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink, err))
		}
	}
	return errors.Join(errs...)
}

// Build connects the sinks enabled in cfg. audit may be nil to skip the
// audit sink. Publishers opened before a failure are closed.
func Build(ctx context.Context, cfg config.NotifyConfig, audit *slog.Logger) (*Fanout, error) {
	var publishers []Publisher
	fail := func(err error) (*Fanout, error) {
		_ = NewFanout(publishers...).Close()
		return nil, err
	}

	if audit != nil {
		publishers = append(publishers, NewAuditPublisher(audit))
	}
	if cfg.Redis.Address != "" {
		p, err := NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		publishers = append(publishers, p)
	}
	if cfg.RabbitMQ.URL != "" {
		p, err := NewRabbitMQPublisher(cfg.RabbitMQ)
		if err != nil {
			return fail(err)
		}
		publishers = append(publishers, p)
	}
	return NewFanout(publishers...), nil
}

// AuditPublisher writes one structured entry per outcome.
type AuditPublisher struct {
	log *slog.Logger
}

// NewAuditPublisher wraps log, usually logger.Audit().
func NewAuditPublisher(log *slog.Logger) *AuditPublisher {
	return &AuditPublisher{log: log}
}

func (p *AuditPublisher) Sink() Sink { return SinkAudit }

func (p *AuditPublisher) Publish(ctx context.Context, o Outcome) error {
	attrs := []slog.Attr{
		slog.String("run_id", o.RunID),
		slog.String("cluster", o.Cluster),
		slog.String("program", o.Program),
		slog.String("account", o.Account),
		slog.String("status", o.Status),
	}
	level := slog.LevelInfo
	if o.Status == "succeeded" {
		attrs = append(attrs,
			slog.String("signature", o.Signature),
			slog.Uint64("value", o.Value))
	} else {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_code", string(o.ErrorCode)),
			slog.String("error", o.Error))
	}
	p.log.LogAttrs(ctx, level, "run finished", attrs...)
	return nil
}

func (p *AuditPublisher) Close() error { return nil }
