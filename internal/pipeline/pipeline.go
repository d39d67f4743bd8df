// Package pipeline implements the refresh loop: drain the inbox, update the
// current state and history, classify and republish each observation, then
// publish an immutable Snapshot for the renderers.
//
// The Engine is the single writer of current state and history. Only the
// inbox (written by MQTT callbacks) and the latest Snapshot (read by the
// HTTP API) cross goroutines.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/history"
	"github.com/luki/labmonitor/internal/inbox"
	"github.com/luki/labmonitor/internal/metrics"
	"github.com/luki/labmonitor/internal/sensor"
)

// Publisher sends classification results to the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Recorder persists each history record as it is appended.
type Recorder interface {
	Write(r history.Record) error
}

// Topics names the inbound data topic and the per-sensor result topics,
// indexed by sensor.Gas.
type Topics struct {
	Data        string
	Predictions [3]string
}

// Options configures an Engine. Inbox and Classifier are required.
type Options struct {
	Topics      Topics
	HistorySize int
	Location    *time.Location // zone for observation timestamps
	Inbox       *inbox.Inbox
	Classifier  *classify.Adapter
	Publisher   Publisher // nil when the broker is unreachable
	Recorder    Recorder  // nil disables recording
	ConnectErr  error     // startup connection failure shown to the user
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine owns the application state.
type Engine struct {
	opts    Options
	log     *slog.Logger
	history *history.Store

	current     sensor.Observation
	predictions classify.Results
	hasData     bool

	processed       uint64
	ignored         uint64
	publishFailures uint64

	latest atomic.Pointer[Snapshot]
}

// New creates an engine with empty state.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.NewAdapter(opts.Logger, nil, nil, nil)
	}
	e := &Engine{
		opts:        opts,
		log:         opts.Logger,
		history:     history.NewStore(opts.HistorySize),
		predictions: classify.Pending(),
	}
	snap := e.snapshot()
	e.latest.Store(&snap)
	return e
}

// Cycle runs one drain-and-render pass: every message pending at the time
// of each check is processed in FIFO order, then a fresh Snapshot is built
// and published. It never fails; faults degrade to sentinel labels.
func (e *Engine) Cycle() Snapshot {
	for {
		msg, ok := e.opts.Inbox.Pop()
		if !ok {
			break
		}
		e.handle(msg)
	}

	snap := e.snapshot()
	e.latest.Store(&snap)
	if m := e.opts.Metrics; m != nil {
		m.HistoryLength.Set(float64(len(snap.History)))
		m.InboxDepth.Set(float64(snap.Counters.Pending))
	}
	return snap
}

// Latest returns the most recently published Snapshot. Safe for concurrent
// use.
func (e *Engine) Latest() Snapshot {
	return *e.latest.Load()
}

// Run cycles immediately and then every interval until ctx is done, handing
// each Snapshot to render.
func (e *Engine) Run(ctx context.Context, interval time.Duration, render func(Snapshot)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := e.Cycle()
		if render != nil {
			render(snap)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) handle(msg inbox.Message) {
	if msg.Topic != e.opts.Topics.Data {
		e.ignored++
		if m := e.opts.Metrics; m != nil {
			m.IgnoredMessages.WithLabelValues(msg.Topic).Inc()
		}
		e.log.Debug("ignoring message on unexpected topic", "topic", msg.Topic)
		return
	}

	obs := sensor.ParseObservation(msg.Payload, e.opts.Now(), e.opts.Location)
	e.current = obs
	e.hasData = true

	results := e.opts.Classifier.Classify(obs)
	e.predictions = results

	for _, g := range sensor.Gases {
		e.publish(e.opts.Topics.Predictions[g], results.Get(g))
	}

	rec := history.Record{Observation: obs, Results: results}
	e.history.Push(rec)
	e.processed++

	if m := e.opts.Metrics; m != nil {
		m.Observations.Inc()
		for _, g := range sensor.Gases {
			m.Predictions.WithLabelValues(g.String(), results.Get(g).Label).Inc()
		}
	}

	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.Write(rec); err != nil {
			e.log.Warn("recording failed", "error", err)
		}
	}

	e.log.Debug("observation processed",
		"time", obs.Timestamp,
		"temperature", obs.Temperature,
		"humidity", obs.Humidity,
		"mq135", results.Get(sensor.MQ135).Label,
		"mq2", results.Get(sensor.MQ2).Label,
		"mq7", results.Get(sensor.MQ7).Label,
	)
}

func (e *Engine) publish(topic string, res classify.Result) {
	if e.opts.Publisher == nil || topic == "" {
		return
	}
	payload, err := json.Marshal(res)
	if err == nil {
		err = e.opts.Publisher.Publish(topic, payload)
	}
	if err != nil {
		e.publishFailures++
		if m := e.opts.Metrics; m != nil {
			m.PublishErrors.WithLabelValues(topic).Inc()
		}
		e.log.Warn("publish failed", "topic", topic, "error", err)
	}
}

func (e *Engine) snapshot() Snapshot {
	st := e.opts.Inbox.Stats()
	snap := Snapshot{
		Current:     e.current,
		Predictions: e.predictions,
		HasData:     e.hasData,
		History:     e.history.Records(),
		HistoryCap:  e.history.Cap(),
		ConnectErr:  e.opts.ConnectErr,
		Taken:       e.opts.Now(),
		Counters: Counters{
			Received:        st.Pushed,
			Rejected:        st.Rejected,
			Pending:         st.Pending,
			Processed:       e.processed,
			Ignored:         e.ignored,
			PublishFailures: e.publishFailures,
		},
	}
	if e.opts.Publisher != nil {
		snap.Connected = e.opts.Publisher.IsConnected()
	}
	return snap
}
