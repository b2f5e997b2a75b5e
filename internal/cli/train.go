package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/digits"
	"github.com/happyhackingspace/digits/internal/metrics"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var (
		trainPath   string
		testPath    string
		modelPath   string
		metricsFile string
	)
	config := digits.DefaultTrainConfig()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a digits file and evaluate it on a test file",
		Args:  cobra.NoArgs,
		Example: `  digits train --train data/optdigits.tra --test data/optdigits.tes --model model.json
  digits train --train data/optdigits.tra --test-fraction 0.2 --model model.bin
  digits train --l2 1e-3 --max-epochs 50 --metrics-file digits.prom -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			config.Trainer.Observer = m

			slog.Info("Training classifier", "train", trainPath, "test", testPath, "output", modelPath)
			start := time.Now()
			res, err := digits.Train(cmd.Context(), trainPath, testPath, config)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))

			out := cmd.OutOrStdout()
			m.RecordReport(res.Report)
			printReport(out, res.Report)
			if res.Metrics != nil {
				m.RecordEvaluation(res.Metrics, res.Classifier.Model().Labels)
				printMetrics(out, "SdcaMaximumEntropy", res.Metrics, res.Classifier.Labels())
				printConfusionMatrix(out, res.Metrics.ConfusionMatrix, res.Classifier.Labels())
			}

			if err := res.Classifier.Save(modelPath); err != nil {
				return &ModelError{Path: modelPath, Err: err}
			}
			slog.Info("Model saved", "path", modelPath)

			if metricsFile != "" {
				if err := m.WriteTextfile(metricsFile); err != nil {
					return err
				}
				slog.Info("Metrics written", "path", metricsFile)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&trainPath, "train", "data/optdigits.tra", "Path to the training data file")
	flags.StringVar(&testPath, "test", "", "Path to the test data file (default: hold out --test-fraction of the training data)")
	flags.StringVar(&modelPath, "model", "model.json", "Output model file (.json for JSON, anything else for binary)")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	flags.Float64Var(&config.TestFraction, "test-fraction", config.TestFraction, "Share of the training data held out when --test is not set (0 disables)")
	flags.Float64Var(&config.Trainer.L2Regularization, "l2", config.Trainer.L2Regularization, "L2 regularization strength")
	flags.IntVar(&config.Trainer.MaxEpochs, "max-epochs", config.Trainer.MaxEpochs, "Maximum number of passes over the training data")
	flags.Float64Var(&config.Trainer.ConvergenceTolerance, "tol", config.Trainer.ConvergenceTolerance, "Relative weight-norm change that counts as converged")
	flags.Int64Var(&config.Trainer.Seed, "seed", config.Trainer.Seed, "Shuffle seed")
	flags.IntVar(&config.Eval.Workers, "workers", config.Eval.Workers, "Evaluation workers")
	return cmd
}
