package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/signalsfoundry/coverage-mapper/internal/engine"
	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/model"
)

// ConsumerConfig captures the runtime tunables for the sample stream.
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// sampleWire is the JSON shape agents publish on the sample topic.
type sampleWire struct {
	SourceID  string          `json:"sourceId"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Value     float64         `json:"value"`
	Position  *model.Position `json:"position,omitempty"`
}

// messageFetcher captures the read capability of a kafka.Reader so
// tests can substitute a scripted source.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// SampleRecorder is the slice of the engine the consumer needs.
type SampleRecorder interface {
	ObserveSample(ctx context.Context, s model.Sample) bool
}

// Consumer streams measurement samples from Kafka into the engine's
// sample window. Malformed messages are logged and skipped; the stream
// keeps flowing.
type Consumer struct {
	cfg       ConsumerConfig
	reader    *kafka.Reader
	fetcher   messageFetcher
	committer messageCommitter
	recorder  SampleRecorder
	log       logging.Logger
	poll      time.Duration
}

// NewConsumer builds a Kafka reader for the configured sample topic.
func NewConsumer(cfg ConsumerConfig, recorder SampleRecorder, log logging.Logger) (*Consumer, error) {
	if recorder == nil {
		return nil, errors.New("sample recorder must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("sample topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}
	if log == nil {
		log = logging.Noop()
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})

	return &Consumer{
		cfg:       cfg,
		reader:    reader,
		fetcher:   reader,
		committer: reader,
		recorder:  recorder,
		log:       log,
		poll:      poll,
	}, nil
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until the context is cancelled or the reader is closed,
// folding samples into the engine as they arrive.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("nil consumer")
	}

	c.log.Info(ctx, "sample consumer started",
		logging.String("topic", c.cfg.Topic),
		logging.String("group", c.cfg.GroupID),
		logging.String("brokers", strings.Join(c.cfg.Brokers, ",")),
	)
	defer c.log.Info(ctx, "sample consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error(ctx, "sample fetch failed", logging.Err(err))
			continue
		}

		c.handleMessage(ctx, msg)

		if c.committer != nil {
			commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
			if err := c.committer.CommitMessages(commitCtx, msg); err != nil {
				if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
					c.log.Error(ctx, "sample commit failed", logging.Err(err))
				}
			}
			commitCancel()
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	sample, err := decodeSample(msg.Value)
	if err != nil {
		c.log.Warn(ctx, "skipping malformed sample",
			logging.Err(err),
			logging.Int("offset", int(msg.Offset)),
		)
		return
	}

	if !c.recorder.ObserveSample(ctx, sample) {
		c.log.Debug(ctx, "sample superseded by newer reading",
			logging.String("source_id", sample.SourceID),
			logging.Int("offset", int(msg.Offset)),
		)
	}
}

func decodeSample(raw []byte) (model.Sample, error) {
	var wire sampleWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.Sample{}, err
	}
	if wire.SourceID == "" {
		return model.Sample{}, errors.New("sample has no source ID")
	}
	if wire.Timestamp.IsZero() {
		return model.Sample{}, errors.New("sample has no timestamp")
	}
	kind, ok := model.ParseSampleKind(wire.Kind)
	if !ok {
		return model.Sample{}, errors.New("unknown sample kind " + wire.Kind)
	}
	return model.Sample{
		SourceID:  wire.SourceID,
		Timestamp: wire.Timestamp,
		Kind:      kind,
		Value:     wire.Value,
		Position:  wire.Position,
	}, nil
}

var _ SampleRecorder = (*engine.MappingEngine)(nil)
