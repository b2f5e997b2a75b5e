// Package storage persists trained models as versioned artifacts.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/happyhackingspace/digits/classifier"
)

// FormatVersion tags every artifact written by this package.
const FormatVersion = 1

// Format selects the artifact encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// FormatForPath picks JSON for ".json" files and binary otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatBinary
}

// Store saves and loads model artifacts for one feature dimension.
type Store struct {
	FeatureDim int
}

// NewStore creates a Store expecting models of the given feature dimension.
func NewStore(featureDim int) *Store {
	return &Store{FeatureDim: featureDim}
}

// Save writes m to path in the format implied by the file extension. The
// artifact is written to a temporary file next to path and renamed into
// place, so an existing artifact is only ever replaced by a complete one.
func (s *Store) Save(path string, m *classifier.Model) (err error) {
	format := FormatForPath(path)
	data, err := Marshal(m, format)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("storage: sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: rename to %s: %w", path, err)
	}
	slog.Debug("Model saved", "path", path, "format", format, "bytes", len(data), "id", m.ID)
	return nil
}

// Load reads the artifact at path. The encoding is detected from the
// content, not the file name.
func (s *Store) Load(path string) (*classifier.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	m, err := Unmarshal(data, s.FeatureDim)
	if err != nil {
		return nil, err
	}
	slog.Debug("Model loaded", "path", path, "id", m.ID, "classes", m.Classes(), "dim", m.Dim)
	return m, nil
}

// Marshal encodes m in the given format.
func Marshal(m *classifier.Model, format Format) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return marshalJSON(m)
	case FormatBinary:
		return marshalBinary(m), nil
	default:
		return nil, fmt.Errorf("storage: unsupported format %s", format)
	}
}

// Unmarshal decodes an artifact in either format and checks it against the
// expected feature dimension.
func Unmarshal(data []byte, featureDim int) (*classifier.Model, error) {
	var (
		a   *artifact
		err error
	)
	switch {
	case bytes.HasPrefix(data, binaryMagic):
		a, err = unmarshalBinary(data[len(binaryMagic):])
	case bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("{")):
		a, err = unmarshalJSON(data)
	default:
		return nil, &SchemaMismatchError{Reason: "unrecognized artifact encoding"}
	}
	if err != nil {
		return nil, err
	}
	return a.model(featureDim)
}
