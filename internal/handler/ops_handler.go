package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/observability"
)

// ScanSignaler releases a session waiting for the operator to confirm the
// login scan.
type ScanSignaler interface {
	Signal()
}

type OpsHandler struct {
	scan  ScanSignaler
	abort func()
}

func NewOpsHandler(scan ScanSignaler, abort func()) (*OpsHandler, error) {
	if scan == nil {
		return nil, fmt.Errorf("%w: scan signaler is required", domain.ErrConfiguration)
	}
	if abort == nil {
		return nil, fmt.Errorf("%w: abort function is required", domain.ErrConfiguration)
	}
	return &OpsHandler{scan: scan, abort: abort}, nil
}

func RegisterOpsRoutes(router fiber.Router, scan ScanSignaler, abort func()) error {
	h, err := NewOpsHandler(scan, abort)
	if err != nil {
		return err
	}

	router.Post("/session/confirm", h.ConfirmScan)
	router.Post("/run/abort", h.AbortRun)

	return nil
}

// RegisterMetricsRoute exposes the Prometheus registry at /metrics.
func RegisterMetricsRoute(router fiber.Router, metrics *observability.Metrics) {
	router.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

func (h *OpsHandler) ConfirmScan(c *fiber.Ctx) error {
	h.scan.Signal()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "confirmation_signalled",
	})
}

// AbortRun cancels the run; the recipient in progress still completes.
func (h *OpsHandler) AbortRun(c *fiber.Ctx) error {
	h.abort()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "abort_requested",
	})
}
