package campaign

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

// LoadTemplate reads a message template file. A blank template is a
// configuration error.
func LoadTemplate(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: open template: %v", domain.ErrConfiguration, err)
	}

	text := string(bytes.TrimPrefix(raw, utf8BOM))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: template %s is empty", domain.ErrConfiguration, path)
	}
	return text, nil
}
