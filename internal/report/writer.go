// Package report persists run outcomes as the pipe-delimited text table
// downstream tooling reads.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"go.uber.org/zap"
)

const (
	Header    = "FECHA | TELEFONO | ESTADO | DETALLE"
	Separator = "-----------------------------------"

	TimestampLayout = "2006-01-02 15:04:05"

	fieldSeparator = " | "
)

var cellReplacer = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"|", "/",
)

// Write serializes outcomes, in order, to w.
func Write(w io.Writer, outcomes []domain.DeliveryOutcome) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s\n%s\n", Header, Separator); err != nil {
		return err
	}
	for _, o := range outcomes {
		row := strings.Join([]string{
			o.Timestamp.Format(TimestampLayout),
			cell(o.Address),
			cell(o.Status.String()),
			cell(o.Detail),
		}, fieldSeparator)
		if _, err := bw.WriteString(row + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func cell(s string) string {
	return strings.TrimSpace(cellReplacer.Replace(s))
}

// FileWriter replaces the report at one destination path.
type FileWriter struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

func NewFileWriter(path string, logger *zap.Logger) (*FileWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: report path is required", domain.ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWriter{path: path, logger: logger}, nil
}

func (w *FileWriter) Path() string { return w.path }

// Write overwrites the destination with outcomes. The table is written to a
// temporary file in the same directory and renamed into place.
func (w *FileWriter) Write(outcomes []domain.DeliveryOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := Write(tmp, outcomes); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}

	w.logger.Info("report written",
		zap.String("path", w.path),
		zap.Int("rows", len(outcomes)),
	)
	return nil
}
