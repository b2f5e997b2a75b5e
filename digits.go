// Package digits classifies 8x8 handwritten-digit images given as 64
// pixel-intensity values.
//
// It fits a multinomial logistic-regression model with stochastic dual
// coordinate ascent and persists it as a versioned artifact.
//
//	res, _ := digits.Train(ctx, "optdigits.tra", "optdigits.tes", digits.DefaultTrainConfig())
//	fmt.Println(res.Metrics.MicroAccuracy)
//	_ = res.Classifier.Save("model.json")
//
//	c, _ := digits.Load("model.json")
//	p, _ := c.Predict(pixels)
//	fmt.Println(p.Label) // 7
package digits

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/dataset"
	"github.com/happyhackingspace/digits/internal/storage"
)

// Prediction is the scored outcome for one feature vector.
type Prediction = classifier.Prediction

// Classifier wraps a trained digit model.
type Classifier struct {
	engine *classifier.Engine
}

func newClassifier(m *classifier.Model) (*Classifier, error) {
	engine, err := classifier.NewEngine(m)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return &Classifier{engine: engine}, nil
}

// New loads "model.json" from the working directory or the nearest parent
// that has one. The search never climbs above the enclosing Go module root.
func New() (*Classifier, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	path, err := findModel(wd, "model.json")
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return Load(path)
}

// findModel returns the first dir/name found walking up from start. A
// directory holding go.mod is the last one searched.
func findModel(start, name string) (string, error) {
	for dir := start; ; {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if fileExists(filepath.Join(dir, "go.mod")) || parent == dir {
			return "", fmt.Errorf("%s not found in %s or its parents", name, start)
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load loads a trained classifier from a model artifact, JSON or binary.
func Load(path string) (*Classifier, error) {
	m, err := storage.NewStore(dataset.FeatureDim).Load(path)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return newClassifier(m)
}

// Save writes the classifier to path. Paths ending in ".json" get the JSON
// encoding, anything else the binary one.
func (c *Classifier) Save(path string) error {
	if c.engine == nil {
		return fmt.Errorf("digits: classifier not initialized")
	}
	if err := storage.NewStore(dataset.FeatureDim).Save(path, c.engine.Model()); err != nil {
		return fmt.Errorf("digits: %w", err)
	}
	return nil
}

// Model returns the underlying model.
func (c *Classifier) Model() *classifier.Model {
	if c.engine == nil {
		return nil
	}
	return c.engine.Model()
}

// Labels returns the raw labels the classifier can predict, ordered by
// class index.
func (c *Classifier) Labels() []int {
	if c.engine == nil {
		return nil
	}
	return c.engine.Model().Labels.Labels()
}

// Predict scores a single 64-value feature vector.
func (c *Classifier) Predict(features []float64) (*Prediction, error) {
	if c.engine == nil {
		return nil, fmt.Errorf("digits: classifier not initialized")
	}
	p, err := c.engine.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return p, nil
}

// PredictBatch scores vectors concurrently. Results are in input order; the
// first malformed vector fails the whole batch.
func (c *Classifier) PredictBatch(ctx context.Context, batch [][]float64) ([]*Prediction, error) {
	if c.engine == nil {
		return nil, fmt.Errorf("digits: classifier not initialized")
	}
	out := make([]*Prediction, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, features := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := c.engine.Predict(features)
			if err != nil {
				return fmt.Errorf("vector %d: %w", i+1, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return out, nil
}
