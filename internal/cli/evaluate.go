package cli

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/digits"
	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/internal/metrics"
	"github.com/happyhackingspace/digits/sdca"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var (
		modelPath   string
		testPath    string
		metricsFile string
	)
	config := digits.DefaultTrainConfig()

	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Evaluate a trained model on a labelled test file",
		Args:    cobra.NoArgs,
		Example: `  digits evaluate --model model.json --test data/optdigits.tes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := loadModel(modelPath)
			if err != nil {
				return err
			}

			slog.Info("Evaluating", "model", modelPath, "test", testPath)
			start := time.Now()
			result, err := cl.Evaluate(cmd.Context(), testPath, config)
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			out := cmd.OutOrStdout()
			printMetrics(out, "SdcaMaximumEntropy", result, cl.Labels())
			printConfusionMatrix(out, result.ConfusionMatrix, cl.Labels())

			if metricsFile != "" {
				m := metrics.New()
				m.RecordEvaluation(result, cl.Model().Labels)
				return m.WriteTextfile(metricsFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: model.json in the working tree)")
	cmd.Flags().StringVar(&testPath, "test", "data/optdigits.tes", "Path to the test data file")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	cmd.Flags().IntVar(&config.Eval.Workers, "workers", config.Eval.Workers, "Evaluation workers")
	return cmd
}

// loadModel loads the artifact at path, or searches for model.json when
// path is empty.
func loadModel(path string) (*digits.Classifier, error) {
	if path == "" {
		slog.Debug("Searching for model.json")
		cl, err := digits.New()
		if err != nil {
			return nil, &ModelError{Path: "model.json", Err: err}
		}
		return cl, nil
	}
	slog.Debug("Loading model", "path", path)
	cl, err := digits.Load(path)
	if err != nil {
		return nil, &ModelError{Path: path, Err: err}
	}
	return cl, nil
}

// num formats v with at most four decimals and no trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

func printReport(w io.Writer, r *sdca.Report) {
	if r.Converged {
		fmt.Fprintf(w, "Converged after %d epochs (dual %s, primal %s, gap %s)\n",
			r.Epochs, num(r.Dual), num(r.Primal), num(r.Gap))
		return
	}
	fmt.Fprintf(w, "Warning: %v (dual %s, primal %s, gap %s)\n", r.Warning, num(r.Dual), num(r.Primal), num(r.Gap))
}

func printMetrics(w io.Writer, name string, m *classifier.Metrics, labels []int) {
	fmt.Fprintf(w, "************************************************************\n")
	fmt.Fprintf(w, "*    Metrics for %s multi-class classification model   \n", name)
	fmt.Fprintf(w, "*-----------------------------------------------------------\n")
	fmt.Fprintf(w, "    AccuracyMacro = %s, a value between 0 and 1, the closer to 1, the better\n", num(m.MacroAccuracy))
	fmt.Fprintf(w, "    AccuracyMicro = %s, a value between 0 and 1, the closer to 1, the better\n", num(m.MicroAccuracy))
	fmt.Fprintf(w, "    LogLoss = %s, the closer to 0, the better\n", num(m.LogLoss))
	fmt.Fprintf(w, "    LogLossReduction = %s, the closer to 1, the better\n", num(m.LogLossReduction))
	for c, loss := range m.PerClassLogLoss {
		fmt.Fprintf(w, "    LogLoss for class %d = %s, the closer to 0, the better\n", labels[c], num(loss))
	}
	if m.Skipped > 0 {
		fmt.Fprintf(w, "    Skipped %d samples with labels unseen in training\n", m.Skipped)
	}
	fmt.Fprintf(w, "************************************************************\n")
}

func printConfusionMatrix(w io.Writer, confusion [][]int, labels []int) {
	if len(confusion) == 0 {
		return
	}

	fmt.Fprintf(w, "\nConfusion matrix (rows=true, cols=predicted):\n")
	fmt.Fprintf(w, "%8s", "")
	for _, l := range labels {
		fmt.Fprintf(w, " %5d", l)
	}
	fmt.Fprintf(w, "  total  acc%%\n")

	for t, row := range confusion {
		fmt.Fprintf(w, "%8d", labels[t])
		total := 0
		for p, count := range row {
			total += count
			if count == 0 && p != t {
				fmt.Fprintf(w, " %5s", ".")
			} else {
				fmt.Fprintf(w, " %5d", count)
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(row[t]) / float64(total) * 100
		}
		fmt.Fprintf(w, "  %5d %5.1f\n", total, acc)
	}
}
