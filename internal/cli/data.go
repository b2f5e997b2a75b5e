package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// uciDataURL hosts the optical recognition of handwritten digits data set.
var uciDataURL = "https://archive.ics.uci.edu/ml/machine-learning-databases/optdigits"

var dataFiles = []string{"optdigits.tra", "optdigits.tes"}

func (c *CLI) newDataCommand() *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Manage training data files",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	var dataFolder string
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download the optdigits training and test files from the UCI repository",
		Example: `  digits data download
  digits data download --data-folder data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dataDownload(cmd.Context(), dataFolder)
		},
	}
	downloadCmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Destination folder for the data files")

	dataCmd.AddCommand(downloadCmd)
	return dataCmd
}

func dataDownload(ctx context.Context, dataFolder string) error {
	if err := os.MkdirAll(dataFolder, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dataFolder, err)
	}
	for _, name := range dataFiles {
		url := uciDataURL + "/" + name
		dest := filepath.Join(dataFolder, name)
		slog.Info("Downloading", "url", url)
		written, err := downloadFile(ctx, url, dest)
		if err != nil {
			return err
		}
		slog.Info("Downloaded", "path", dest, "size", fmt.Sprintf("%.1fKB", float64(written)/1024))
	}
	return nil
}

// downloadFile fetches url into dest. A partial download never replaces an
// existing file.
func downloadFile(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", tmp, err)
	}
	written, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("close file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", dest, err)
	}
	return written, nil
}
