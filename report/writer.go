package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/kbukum/crossmatch/logger"
	"github.com/kbukum/crossmatch/storage"
)

// Writer stores and reads run reports.
type Writer struct {
	store storage.Storage
	cfg   Config
	log   *logger.Logger
}

// NewWriter creates a Writer on top of store.
func NewWriter(store storage.Storage, cfg Config) (*Writer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{store: store, cfg: cfg, log: logger.Get("report")}, nil
}

// Path returns the object path of doc.
func (w *Writer) Path(doc Document) string {
	return path.Join(w.cfg.Prefix, doc.Routine, doc.StartedAt.UTC().Format("2006-01-02"), doc.RunID+w.cfg.extension())
}

// Write encodes, compresses and uploads doc. It returns the object path.
func (w *Writer) Write(ctx context.Context, doc Document) (string, error) {
	var buf bytes.Buffer
	if err := w.encode(&buf, doc); err != nil {
		return "", fmt.Errorf("report: encode %s: %w", doc.RunID, err)
	}
	p := w.Path(doc)
	if err := w.store.Upload(ctx, p, bytes.NewReader(buf.Bytes()), contentType(p)); err != nil {
		return "", fmt.Errorf("report: upload %s: %w", doc.RunID, err)
	}
	w.log.WithContext(ctx).Info("Run report written", logger.Fields(
		"url", w.store.URL(p),
		"bytes", buf.Len(),
	))
	return p, nil
}

func (w *Writer) encode(out io.Writer, doc Document) error {
	var (
		zw  io.WriteCloser
		err error
	)
	switch w.cfg.Compression {
	case CompressionGzip:
		level := w.cfg.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		zw, err = gzip.NewWriterLevel(out, level)
	case CompressionZstd:
		zw, err = zstd.NewWriter(out)
	default:
		return json.NewEncoder(out).Encode(doc)
	}
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// Read downloads and decodes the report at p. The compression is taken
// from the path's extension.
func (w *Writer) Read(ctx context.Context, p string) (*Document, error) {
	rc, err := w.store.Download(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	switch {
	case strings.HasSuffix(p, ".gz"):
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("report: open gzip %s: %w", p, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(p, ".zst"):
		zr, err := zstd.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("report: open zstd %s: %w", p, err)
		}
		defer zr.Close()
		r = zr
	}

	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", p, err)
	}
	return &doc, nil
}

// List returns the report paths of routine, ordered by run date.
func (w *Writer) List(ctx context.Context, routine string) ([]string, error) {
	files, err := w.store.List(ctx, path.Join(w.cfg.Prefix, routine)+"/")
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths, nil
}

func contentType(p string) string {
	switch {
	case strings.HasSuffix(p, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(p, ".zst"):
		return "application/zstd"
	default:
		return "application/json"
	}
}
