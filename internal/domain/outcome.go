package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus is the terminal classification of one send.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "Delivered"
	DeliveryStatusSent      DeliveryStatus = "Sent"
	DeliveryStatusQueued    DeliveryStatus = "Queued"
	DeliveryStatusError     DeliveryStatus = "Error"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusSent, DeliveryStatusQueued, DeliveryStatusError:
		return true
	}
	return false
}

// IsConfirmed reports whether the status counts as a confirmed send.
func (s DeliveryStatus) IsConfirmed() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusSent
}

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	trimmed := strings.TrimSpace(s)
	for _, st := range []DeliveryStatus{
		DeliveryStatusDelivered,
		DeliveryStatusSent,
		DeliveryStatusQueued,
		DeliveryStatusError,
	} {
		if strings.EqualFold(trimmed, st.String()) {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", s)
}

// DeliveryOutcome is the terminal record of one attempted send.
type DeliveryOutcome struct {
	Timestamp time.Time
	Address   string
	Status    DeliveryStatus
	Detail    string
	Confirmed bool
}

// NewOutcome builds an outcome whose Confirmed flag follows status.
func NewOutcome(at time.Time, address string, status DeliveryStatus, detail string) DeliveryOutcome {
	return DeliveryOutcome{
		Timestamp: at,
		Address:   address,
		Status:    status,
		Detail:    detail,
		Confirmed: status.IsConfirmed(),
	}
}

// ErrorOutcome records a failed send; err becomes the detail.
func ErrorOutcome(at time.Time, address string, err error) DeliveryOutcome {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return NewOutcome(at, address, DeliveryStatusError, detail)
}

// RunReport is the ordered list of outcomes of one run.
type RunReport struct {
	RunID    string
	Channel  string
	Started  time.Time
	Finished time.Time
	Outcomes []DeliveryOutcome
}

// Summary returns confirmed and total outcome counts.
func (r *RunReport) Summary() (confirmed int, total int) {
	if r == nil {
		return 0, 0
	}
	for _, o := range r.Outcomes {
		if o.Confirmed {
			confirmed++
		}
	}
	return confirmed, len(r.Outcomes)
}

// CountByStatus returns how many outcomes ended in each status.
func (r *RunReport) CountByStatus() map[DeliveryStatus]int {
	counts := make(map[DeliveryStatus]int, 4)
	if r == nil {
		return counts
	}
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}
