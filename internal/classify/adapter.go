// Package classify wraps the three pre-trained gas classifiers behind a
// uniform (reading) -> (label, confidence) contract. Missing models report
// "N/A" and failing inferences report "Error"; neither is ever propagated
// to the caller.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/luki/labmonitor/internal/sensor"
)

// Sentinel labels.
const (
	LabelUnavailable = "N/A"
	LabelError       = "Error"
	LabelPending     = "Waiting..."
)

// Result is the classification of one gas reading.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// MarshalJSON writes confidence with exactly one decimal, e.g.
// {"label":"Baik","confidence":92.0}.
func (r Result) MarshalJSON() ([]byte, error) {
	label, err := json.Marshal(r.Label)
	if err != nil {
		return nil, err
	}
	c := r.Confidence
	if math.IsNaN(c) || math.IsInf(c, 0) {
		c = 0
	}
	return fmt.Appendf(nil, `{"label":%s,"confidence":%s}`, label, strconv.FormatFloat(c, 'f', 1, 64)), nil
}

// Results holds one Result per gas sensor, indexed by sensor.Gas.
type Results [3]Result

// Get returns the result for g.
func (r Results) Get(g sensor.Gas) Result {
	return r[g]
}

// Pending returns the placeholder shown before the first observation.
func Pending() Results {
	p := Result{Label: LabelPending}
	return Results{p, p, p}
}

// Confidence scales a probability to a percentage rounded to one decimal
// place and clamped to [0, 100].
func Confidence(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	c := math.Round(p*1000) / 10
	return math.Max(0, math.Min(100, c))
}

// ── Slots ────────────────────────────────────────────────────────────

// Slot holds one model and knows how to feed it.
type Slot struct {
	name     string
	model    Model
	encoder  []string // label decoding table; nil for plain slots
	features []string
	loadErr  error
}

// NewSlot wraps a single-feature model whose classes are the labels.
func NewSlot(name string, m Model) *Slot {
	return &Slot{name: name, model: m}
}

// NewEncodedSlot wraps a model trained on (temperature, humidity, gas)
// whose class values index into encoder.
func NewEncodedSlot(name string, m Model, encoder, features []string) *Slot {
	return &Slot{name: name, model: m, encoder: encoder, features: features}
}

// Unavailable returns a slot that always reports "N/A".
func Unavailable(name string, err error) *Slot {
	return &Slot{name: name, loadErr: err}
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Available reports whether a model is loaded.
func (s *Slot) Available() bool { return s != nil && s.model != nil }

// Err returns the load error of an unavailable slot.
func (s *Slot) Err() error {
	if s == nil {
		return errors.New("no slot")
	}
	return s.loadErr
}

// Features returns the artifact's column names for an encoded slot.
func (s *Slot) Features() []string { return s.features }

func (s *Slot) classify(x []float64) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: model panic: %v", s.name, r)
		}
	}()

	idx, err := s.model.Predict(x)
	if err != nil {
		return Result{}, fmt.Errorf("%s predict: %w", s.name, err)
	}
	proba, err := s.model.PredictProba(x)
	if err != nil {
		return Result{}, fmt.Errorf("%s predict_proba: %w", s.name, err)
	}
	classes := s.model.Classes()
	if idx < 0 || idx >= len(classes) || idx >= len(proba) {
		return Result{}, fmt.Errorf("%s: class index %d out of range", s.name, idx)
	}

	if s.encoder == nil {
		best := 0.0
		for _, p := range proba {
			best = math.Max(best, p)
		}
		return Result{Label: classes[idx], Confidence: Confidence(best)}, nil
	}

	code, err := strconv.Atoi(classes[idx])
	if err != nil {
		return Result{}, fmt.Errorf("%s: class %q is not an encoded label", s.name, classes[idx])
	}
	if code < 0 || code >= len(s.encoder) {
		return Result{}, fmt.Errorf("%s: encoded label %d out of range", s.name, code)
	}
	return Result{Label: s.encoder[code], Confidence: Confidence(proba[idx])}, nil
}

// ── Loading ──────────────────────────────────────────────────────────

// bundle is the MQ-135 artifact: a model plus its label decoding table and
// feature column order.
type bundle struct {
	Model        *Forest  `json:"model"`
	LabelEncoder []string `json:"label_encoder"`
	Features     []string `json:"features"`
}

// LoadSlot loads a plain single-feature forest. On failure it returns an
// unavailable slot together with the error.
func LoadSlot(name, path string) (*Slot, error) {
	f, err := LoadForest(path)
	if err != nil {
		err = fmt.Errorf("load %s model: %w", name, err)
		return Unavailable(name, err), err
	}
	if f.NFeatures != 1 {
		err = fmt.Errorf("load %s model: %w: got %d, want 1", name, ErrFeatureCount, f.NFeatures)
		return Unavailable(name, err), err
	}
	return NewSlot(name, f), nil
}

// LoadEncodedSlot loads a bundled three-feature forest with its label
// encoder. On failure it returns an unavailable slot together with the
// error.
func LoadEncodedSlot(name, path string) (*Slot, error) {
	s, err := loadBundle(name, path)
	if err != nil {
		err = fmt.Errorf("load %s model: %w", name, err)
		return Unavailable(name, err), err
	}
	return s, nil
}

func loadBundle(name, path string) (*Slot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if b.Model == nil {
		return nil, fmt.Errorf("%s: bundle has no model", path)
	}
	if err := b.Model.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(b.LabelEncoder) == 0 {
		return nil, fmt.Errorf("%s: bundle has no label encoder", path)
	}
	if len(b.Features) != 3 || b.Model.NFeatures != 3 {
		return nil, fmt.Errorf("%s: %w: bundle declares %d columns, model %d, want 3",
			path, ErrFeatureCount, len(b.Features), b.Model.NFeatures)
	}
	return NewEncodedSlot(name, b.Model, b.LabelEncoder, b.Features), nil
}

// ── Adapter ──────────────────────────────────────────────────────────

// Paths locates the three model artifacts.
type Paths struct {
	MQ135 string
	MQ2   string
	MQ7   string
}

// Adapter classifies all three gas readings of an observation.
type Adapter struct {
	slots [3]*Slot
	log   *slog.Logger
}

// NewAdapter builds an adapter from explicit slots. A nil slot is treated as
// unavailable.
func NewAdapter(log *slog.Logger, mq135, mq2, mq7 *Slot) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	a := &Adapter{slots: [3]*Slot{mq135, mq2, mq7}, log: log}
	for _, g := range sensor.Gases {
		if a.slots[g] == nil {
			a.slots[g] = Unavailable(g.String(), errors.New("not configured"))
		}
	}
	return a
}

// Load reads all three artifacts. Load failures are logged and leave the
// slot unavailable; they never fail the adapter.
func Load(log *slog.Logger, paths Paths) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	mq135, err135 := LoadEncodedSlot(sensor.MQ135.String(), paths.MQ135)
	mq2, err2 := LoadSlot(sensor.MQ2.String(), paths.MQ2)
	mq7, err7 := LoadSlot(sensor.MQ7.String(), paths.MQ7)

	for _, r := range []struct {
		slot *Slot
		path string
		err  error
	}{{mq135, paths.MQ135, err135}, {mq2, paths.MQ2, err2}, {mq7, paths.MQ7, err7}} {
		if r.err != nil {
			log.Error("model unavailable", "sensor", r.slot.Name(), "path", r.path, "error", r.err)
		} else {
			log.Info("model loaded", "sensor", r.slot.Name(), "path", r.path, "features", r.slot.Features())
		}
	}
	return NewAdapter(log, mq135, mq2, mq7)
}

// Slot returns the slot serving g.
func (a *Adapter) Slot(g sensor.Gas) *Slot {
	return a.slots[g]
}

// Classify runs all three sensors. A failing sensor never prevents the
// others from being classified.
func (a *Adapter) Classify(o sensor.Observation) Results {
	var out Results
	for _, g := range sensor.Gases {
		out[g] = a.ClassifyGas(g, o)
	}
	return out
}

// ClassifyGas runs one sensor's model against the observation.
func (a *Adapter) ClassifyGas(g sensor.Gas, o sensor.Observation) Result {
	s := a.slots[g]
	if !s.Available() {
		return Result{Label: LabelUnavailable}
	}

	x := []float64{o.Gas(g)}
	if s.encoder != nil {
		x = []float64{o.Temperature, o.Humidity, o.Gas(g)}
	}

	res, err := s.classify(x)
	if err != nil {
		a.log.Warn("prediction failed", "sensor", s.name, "error", err)
		return Result{Label: LabelError}
	}
	return res
}
