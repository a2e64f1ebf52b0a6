package service

import (
	"strings"

	"github.com/kursadbilgin/wa-dispatch/internal/domain"
)

// PreviewRow is what a run would send to one recipient.
type PreviewRow struct {
	Index   int
	Raw     string
	Address domain.Address
	Message string
	// Problem is set when the row would end in an Error outcome.
	Problem error
}

// Preview renders every message and normalizes every phone of the campaign
// without contacting any channel. The campaign itself is validated first.
func Preview(c Campaign) ([]PreviewRow, error) {
	countryCode, err := validateCampaign(c)
	if err != nil {
		return nil, err
	}

	rows := make([]PreviewRow, 0, len(c.Recipients))
	for i, recipient := range c.Recipients {
		row := PreviewRow{Index: i}

		raw, err := recipient.Phone()
		if err != nil {
			row.Problem = err
			rows = append(rows, row)
			continue
		}
		row.Raw = strings.TrimSpace(raw)

		address, err := domain.NormalizePhone(raw, countryCode)
		if err != nil {
			row.Problem = err
			rows = append(rows, row)
			continue
		}
		row.Address = address

		row.Message, row.Problem = domain.RenderTemplate(c.Template, recipient)
		rows = append(rows, row)
	}

	return rows, nil
}
