package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Sentinel inference errors.
var (
	ErrFeatureCount = errors.New("wrong number of features")
	ErrNonFinite    = errors.New("non-finite feature value")
)

// Model is a trained classifier over a fixed-width feature vector.
type Model interface {
	// Classes returns the class values in probability-column order.
	Classes() []string
	// Predict returns the index into Classes of the most likely class.
	Predict(features []float64) (int, error)
	// PredictProba returns one probability per class.
	PredictProba(features []float64) ([]float64, error)
}

// Tree is one exported decision tree. Node i is a leaf when
// ChildrenLeft[i] == -1; Value[i] holds its class counts or weights.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Forest is a random-forest classifier: the average of its trees' leaf
// class distributions.
type Forest struct {
	ClassList classList `json:"classes"`
	NFeatures int       `json:"n_features"`
	Trees     []Tree    `json:"trees"`
}

// classList accepts class values exported as strings or numbers.
type classList []string

func (c *classList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		switch v := v.(type) {
		case string:
			out[i] = v
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(v)
		default:
			return fmt.Errorf("class %d: unsupported value %v", i, v)
		}
	}
	*c = out
	return nil
}

// LoadForest reads and validates a forest artifact from a JSON file.
func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate checks that every tree is well formed for the declared classes
// and feature count.
func (f *Forest) Validate() error {
	if len(f.ClassList) == 0 {
		return errors.New("forest has no classes")
	}
	if f.NFeatures <= 0 {
		return errors.New("forest has no features")
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for ti, t := range f.Trees {
		n := len(t.ChildrenLeft)
		if n == 0 {
			return fmt.Errorf("tree %d: empty", ti)
		}
		if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
			return fmt.Errorf("tree %d: node arrays differ in length", ti)
		}
		for i := 0; i < n; i++ {
			if len(t.Value[i]) != len(f.ClassList) {
				return fmt.Errorf("tree %d node %d: %d values for %d classes", ti, i, len(t.Value[i]), len(f.ClassList))
			}
			l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
			if l == -1 {
				continue
			}
			if l <= i || l >= n || r <= i || r >= n {
				return fmt.Errorf("tree %d node %d: child out of range", ti, i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= f.NFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, i, t.Feature[i])
			}
		}
	}
	return nil
}

// Classes returns the class values in probability-column order.
func (f *Forest) Classes() []string {
	return f.ClassList
}

// PredictProba averages the normalised leaf distributions of all trees.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), f.NFeatures)
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w at column %d", ErrNonFinite, i)
		}
	}

	proba := make([]float64, len(f.ClassList))
	for _, t := range f.Trees {
		leaf := t.Value[t.leaf(x)]
		total := 0.0
		for _, v := range leaf {
			total += v
		}
		if total <= 0 {
			continue
		}
		for i, v := range leaf {
			proba[i] += v / total
		}
	}
	for i := range proba {
		proba[i] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the index of the most probable class; ties go to the
// lowest index.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// leaf walks from the root to the leaf selected by x. Validate guarantees
// children point forward, so the walk terminates.
func (t Tree) leaf(x []float64) int {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node
}

func argmax(vals []float64) int {
	best := 0
	for i, v := range vals {
		if v > vals[best] {
			best = i
		}
	}
	return best
}
