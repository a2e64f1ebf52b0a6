// Package campaign loads the recipient list and message template a run
// dispatches.
package campaign

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadRecipients reads a CSV file whose first row is the header.
func LoadRecipients(path string) ([]domain.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open recipients: %v", domain.ErrConfiguration, err)
	}
	defer f.Close()

	return ReadRecipients(f)
}

// ReadRecipients parses CSV rows into recipients in file order. Comma and
// semicolon separated files are both accepted. Rows with no value at all are
// skipped. A header without a phone column is a configuration error.
func ReadRecipients(r io.Reader) ([]domain.Recipient, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	firstLine, err := br.Peek(br.Size())
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read recipients: %v", domain.ErrConfiguration, err)
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(firstLine)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: recipients file is empty", domain.ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read recipients header: %v", domain.ErrConfiguration, err)
	}
	if _, ok := domain.FindPhoneField(header); !ok {
		return nil, fmt.Errorf("%w: recipients header has no phone column (%s)",
			domain.ErrConfiguration, strings.Join(header, ", "))
	}

	recipients := make([]domain.Recipient, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read recipients: %v", domain.ErrConfiguration, err)
		}

		recipient := domain.NewRecipient(header, record)
		if recipient.IsBlank() {
			continue
		}
		recipients = append(recipients, recipient)
	}

	return recipients, nil
}

// sniffDelimiter picks ';' when the header line uses it and has no comma,
// as spreadsheet exports in comma-decimal locales do.
func sniffDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if bytes.IndexByte(line, ';') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return ';'
	}
	return ','
}
