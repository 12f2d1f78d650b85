package notify

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
)

type recordingPublisher struct {
	sink     Sink
	err      error
	mu       sync.Mutex
	outcomes []Outcome
	closed   bool
}

func (p *recordingPublisher) Sink() Sink { return p.sink }

func (p *recordingPublisher) Publish(_ context.Context, o Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func sampleOutcome() Outcome {
	return Outcome{
		RunID:      "run-1",
		Cluster:    "devnet",
		Program:    "Prog1111111111111111111111111111111111111111",
		Status:     "succeeded",
		Value:      1,
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	a := &recordingPublisher{sink: SinkRedis}
	b := &recordingPublisher{sink: SinkRabbitMQ}
	f := NewFanout(a, nil, b)

	require.Equal(t, []Sink{SinkRabbitMQ, SinkRedis}, f.Sinks())
	require.NoError(t, f.Publish(context.Background(), sampleOutcome()))
	require.Len(t, a.outcomes, 1)
	require.Len(t, b.outcomes, 1)

	require.NoError(t, f.Close())
	require.True(t, a.closed)
	require.True(t, b.closed)
}

func TestFanoutJoinsFailures(t *testing.T) {
	broken := &recordingPublisher{sink: SinkRedis, err: stdErrors.New("connection refused")}
	healthy := &recordingPublisher{sink: SinkRabbitMQ}

	err := NewFanout(broken, healthy).Publish(context.Background(), sampleOutcome())
	require.Error(t, err)
	require.True(t, xerrors.HasCode(err, xerrors.CodePublishFailure))
	require.Contains(t, err.Error(), "sink redis: connection refused")
	require.Len(t, healthy.outcomes, 1)
}

func TestNilFanoutIsNoop(t *testing.T) {
	var f *Fanout
	require.NoError(t, f.Publish(context.Background(), sampleOutcome()))
	require.NoError(t, f.Close())
}

func TestAuditPublisherWritesEntry(t *testing.T) {
	var buf bytes.Buffer
	p := NewAuditPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	failed := sampleOutcome()
	failed.Status = "failed"
	failed.ErrorCode = "SUBMISSION"
	failed.Error = "[SUBMISSION] transaction rejected"
	require.NoError(t, p.Publish(context.Background(), failed))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "run-1", entry["run_id"])
	require.Equal(t, "SUBMISSION", entry["error_code"])
}

func TestBuildWithAuditOnly(t *testing.T) {
	f, err := Build(context.Background(), config.NotifyConfig{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	require.Equal(t, []Sink{SinkAudit}, f.Sinks())
}

type captureHook struct {
	mu   sync.Mutex
	args [][]any
}

func (h *captureHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *captureHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.args = append(h.args, cmd.Args())
		return nil
	}
}

func (h *captureHook) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, cmd := range cmds {
			h.args = append(h.args, cmd.Args())
		}
		return nil
	}
}

func TestRedisPublisherPushesAndTrims(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	hook := &captureHook{}
	client.AddHook(hook)
	p := newRedisPublisher(client, "")
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.Publish(context.Background(), sampleOutcome()))
	require.Len(t, hook.args, 2)

	push := hook.args[0]
	require.Equal(t, "lpush", push[0])
	require.Equal(t, "counter:runs", push[1])
	var decoded Outcome
	require.NoError(t, json.Unmarshal(push[2].([]byte), &decoded))
	require.Equal(t, "run-1", decoded.RunID)

	require.Equal(t, []any{"ltrim", "counter:runs", int64(0), int64(redisHistoryLength - 1)}, hook.args[1])
}

func TestRedisPublisherRequiresAddress(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), config.RedisConfig{})
	require.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument))
}

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange = exchange
	c.key = key
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestRabbitMQPublisherSendsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitMQPublisher{ch: ch, queue: "counter.runs"}

	require.NoError(t, p.Publish(context.Background(), sampleOutcome()))
	require.Equal(t, "", ch.exchange)
	require.Equal(t, "counter.runs", ch.key)
	require.Len(t, ch.msgs, 1)

	msg := ch.msgs[0]
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, "run-1", msg.MessageId)
	require.Equal(t, "counter.run.succeeded", msg.Type)

	require.NoError(t, p.Close())
	require.True(t, ch.closed)
}

func TestRabbitMQPublisherRequiresURL(t *testing.T) {
	_, err := NewRabbitMQPublisher(config.RabbitMQConfig{})
	require.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument))
}
