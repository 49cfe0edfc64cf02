package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/model"
)

type scriptedFetcher struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (f *scriptedFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return kafka.Message{}, io.ErrClosedPipe
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

type recordingEngine struct {
	mu      sync.Mutex
	samples []model.Sample
}

func (r *recordingEngine) ObserveSample(_ context.Context, s model.Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return true
}

func newScriptedConsumer(fetcher messageFetcher, recorder SampleRecorder) *Consumer {
	return &Consumer{
		cfg:      ConsumerConfig{Topic: "coverage.samples", GroupID: "mapper"},
		fetcher:  fetcher,
		recorder: recorder,
		log:      logging.Noop(),
		poll:     100 * time.Millisecond,
	}
}

func TestNewConsumerValidatesConfig(t *testing.T) {
	recorder := &recordingEngine{}
	cases := []struct {
		name string
		cfg  ConsumerConfig
	}{
		{"no brokers", ConsumerConfig{Topic: "t", GroupID: "g"}},
		{"no topic", ConsumerConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"}},
		{"no group", ConsumerConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}},
	}
	for _, tc := range cases {
		if _, err := NewConsumer(tc.cfg, recorder, logging.Noop()); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
	if _, err := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, Topic: "t", GroupID: "g"}, nil, logging.Noop()); err == nil {
		t.Error("nil recorder: expected an error")
	}
}

func TestRunConsumesValidSamples(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(fmt.Sprintf(
			`{"sourceId":"ap-lounge","timestamp":%q,"kind":"rssi","value":-48}`, ts.Format(time.RFC3339)))},
		{Offset: 2, Value: []byte(fmt.Sprintf(
			`{"sourceId":"ap-study","timestamp":%q,"kind":"rtt","value":14.5}`, ts.Format(time.RFC3339)))},
	}}
	recorder := &recordingEngine{}
	c := newScriptedConsumer(fetcher, recorder)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.samples) != 2 {
		t.Fatalf("recorded samples = %d, want 2", len(recorder.samples))
	}
	if recorder.samples[0].SourceID != "ap-lounge" || recorder.samples[0].Kind != model.SampleRSSI {
		t.Errorf("first sample = %+v, want ap-lounge rssi", recorder.samples[0])
	}
	if recorder.samples[1].Kind != model.SampleRTT || recorder.samples[1].Value != 14.5 {
		t.Errorf("second sample = %+v, want ap-study rtt 14.5", recorder.samples[1])
	}
}

func TestRunSkipsMalformedMessages(t *testing.T) {
	ts := time.Now().UTC().Format(time.RFC3339)
	fetcher := &scriptedFetcher{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{not json`)},
		{Offset: 2, Value: []byte(`{"sourceId":"","timestamp":"` + ts + `","kind":"rssi","value":-50}`)},
		{Offset: 3, Value: []byte(`{"sourceId":"ap-a","timestamp":"` + ts + `","kind":"lqi","value":-50}`)},
		{Offset: 4, Value: []byte(`{"sourceId":"ap-a","timestamp":"` + ts + `","kind":"rssi","value":-50}`)},
	}}
	recorder := &recordingEngine{}
	c := newScriptedConsumer(fetcher, recorder)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.samples) != 1 {
		t.Fatalf("recorded samples = %d, want only the valid one", len(recorder.samples))
	}
	if recorder.samples[0].SourceID != "ap-a" {
		t.Errorf("sample = %+v, want ap-a", recorder.samples[0])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	blocker := fetchBlocker{release: make(chan struct{})}
	recorder := &recordingEngine{}
	c := newScriptedConsumer(&blocker, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

type fetchBlocker struct {
	release chan struct{}
}

func (f *fetchBlocker) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-f.release:
		return kafka.Message{}, io.ErrClosedPipe
	}
}
