package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/digits/dataset"
)

// predictResult is the JSON output for one input vector.
type predictResult struct {
	Line   int       `json:"line"`
	Label  int       `json:"label"`
	Scores []float64 `json:"scores"`
	Actual *int      `json:"actual,omitempty"`
}

func (c *CLI) newPredictCommand() *cobra.Command {
	var (
		modelPath string
		labeled   bool
	)

	cmd := &cobra.Command{
		Use:   "predict [file]",
		Short: "Classify comma separated feature vectors from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Classify every vector in a file
  digits predict vectors.csv --model model.json

  # Pipe vectors from stdin
  head -n 5 data/optdigits.tes | digits predict --labeled

  # Silent mode
  digits predict vectors.csv -s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader
			if len(args) == 0 {
				in = cmd.InOrStdin()
				if in == os.Stdin && isStdinTerminal() {
					return cmd.Help()
				}
				slog.Debug("Reading from stdin")
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			lines, vectors, actual, err := readVectors(in, labeled)
			if err != nil {
				return err
			}
			if len(vectors) == 0 {
				return fmt.Errorf("predict: %w", dataset.ErrEmptySource)
			}

			start := time.Now()
			cl, err := loadModel(modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "duration", time.Since(start))

			start = time.Now()
			preds, err := cl.PredictBatch(cmd.Context(), vectors)
			if err != nil {
				return err
			}
			slog.Debug("Classification completed", "vectors", len(preds), "duration", time.Since(start))

			results := make([]predictResult, len(preds))
			for i, p := range preds {
				results[i] = predictResult{Line: lines[i], Label: p.Label, Scores: p.Scores}
				if labeled {
					results[i].Actual = &actual[i]
				}
			}
			output, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return err
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: model.json in the working tree)")
	cmd.Flags().BoolVar(&labeled, "labeled", false, "Input lines carry a trailing label, as in the training files")
	return cmd
}

// readVectors parses one vector per non-blank line and returns the 1-based
// source line of each.
func readVectors(r io.Reader, labeled bool) (lines []int, vectors [][]float64, actual []int, err error) {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		features, label, err := dataset.ParseVector(text, ',', dataset.FeatureDim, labeled)
		if err != nil {
			var formatErr *dataset.DataFormatError
			if errors.As(err, &formatErr) {
				formatErr.Line = n
				return nil, nil, nil, formatErr
			}
			return nil, nil, nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, n)
		vectors = append(vectors, features)
		actual = append(actual, label)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("read input: %w", err)
	}
	return lines, vectors, actual, nil
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
