package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

// Parse reads a report table back into outcomes. Confirmed is derived from
// the status, timestamps are read in local time.
func Parse(r io.Reader) ([]domain.DeliveryOutcome, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	outcomes := make([]domain.DeliveryOutcome, 0)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		switch lineNo {
		case 1:
			if normalizeHeader(line) != Header {
				return nil, fmt.Errorf("line 1: unexpected header %q", line)
			}
			continue
		case 2:
			if strings.Trim(line, "-") != "" || line == "" {
				return nil, fmt.Errorf("line 2: unexpected separator %q", line)
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		outcome, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if lineNo == 0 {
		return nil, fmt.Errorf("empty report")
	}

	return outcomes, nil
}

// ParseFile reads the report at path.
func ParseFile(path string) ([]domain.DeliveryOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

func parseRow(line string) (domain.DeliveryOutcome, error) {
	fields := strings.SplitN(line, "|", 4)
	if len(fields) != 4 {
		return domain.DeliveryOutcome{}, fmt.Errorf("expected 4 columns, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	at, err := time.ParseInLocation(TimestampLayout, fields[0], time.Local)
	if err != nil {
		return domain.DeliveryOutcome{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	status, err := domain.ParseDeliveryStatus(fields[2])
	if err != nil {
		return domain.DeliveryOutcome{}, err
	}

	return domain.NewOutcome(at, fields[1], status, fields[3]), nil
}

// Older reports spell the column TELÉFONO.
func normalizeHeader(line string) string {
	return strings.Replace(strings.TrimSpace(line), "TELÉFONO", "TELEFONO", 1)
}
