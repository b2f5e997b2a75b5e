package digits

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/dataset"
	"github.com/happyhackingspace/digits/sdca"
)

// TrainConfig holds configuration for training.
type TrainConfig struct {
	Schema  dataset.Schema
	Trainer sdca.Config
	Eval    classifier.EvalConfig

	// TestFraction holds out this share of the training file for evaluation
	// when no test file is given. Zero disables evaluation in that case.
	TestFraction float64
	SplitSeed    uint64
}

// DefaultTrainConfig returns the configuration used by the CLI.
func DefaultTrainConfig() *TrainConfig {
	return &TrainConfig{
		Schema:       dataset.DigitSchema(),
		Trainer:      sdca.DefaultConfig(),
		Eval:         classifier.DefaultEvalConfig(),
		TestFraction: 0.2,
		SplitSeed:    1,
	}
}

// TrainResult bundles a trained classifier with its training report and
// held-out metrics. Metrics is nil when nothing was held out.
type TrainResult struct {
	Classifier *Classifier
	Report     *sdca.Report
	Metrics    *classifier.Metrics
}

// Train fits a classifier on the samples in trainPath and evaluates it on
// testPath. With an empty testPath a seeded fraction of the training file is
// held out instead.
func Train(ctx context.Context, trainPath, testPath string, config *TrainConfig) (*TrainResult, error) {
	if config == nil {
		config = DefaultTrainConfig()
	}

	train, err := dataset.LoadFile(trainPath, config.Schema)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}

	var test *dataset.Dataset
	switch {
	case testPath != "":
		if test, err = dataset.LoadFile(testPath, config.Schema); err != nil {
			return nil, fmt.Errorf("digits: %w", err)
		}
	case config.TestFraction > 0:
		if train, test, err = dataset.Split(train, config.TestFraction, config.SplitSeed); err != nil {
			return nil, fmt.Errorf("digits: %w", err)
		}
		slog.Info("Held out part of the training data", "train", train.Len(), "test", test.Len())
	}

	slog.Info("Training", "samples", train.Len(), "lambda", config.Trainer.L2Regularization)
	model, report, err := sdca.Train(ctx, train, config.Trainer)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	c, err := newClassifier(model)
	if err != nil {
		return nil, err
	}
	res := &TrainResult{Classifier: c, Report: report}
	if test == nil {
		return res, nil
	}

	if res.Metrics, err = classifier.Evaluate(ctx, model, test, config.Eval); err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return res, nil
}

// Evaluate scores the classifier against the labelled samples in testPath.
func (c *Classifier) Evaluate(ctx context.Context, testPath string, config *TrainConfig) (*classifier.Metrics, error) {
	if c.engine == nil {
		return nil, fmt.Errorf("digits: classifier not initialized")
	}
	if config == nil {
		config = DefaultTrainConfig()
	}
	test, err := dataset.LoadFile(testPath, config.Schema)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	metrics, err := classifier.Evaluate(ctx, c.engine.Model(), test, config.Eval)
	if err != nil {
		return nil, fmt.Errorf("digits: %w", err)
	}
	return metrics, nil
}
