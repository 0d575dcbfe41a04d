package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// ListRunsHandler returns every target/layer run, newest first. An optional
// ?status= narrows the list.
func ListRunsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		runs, err := deps.Runs.List(c.UserContext())
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list runs", "error", err)
			return errInternal(c, "could not list runs")
		}

		if status := c.Query("status"); status != "" {
			filtered := make([]domain.Run, 0, len(runs))
			for _, r := range runs {
				if r.Status == status {
					filtered = append(filtered, r)
				}
			}
			runs = filtered
		}

		if runs == nil {
			runs = []domain.Run{}
		}
		offset, limit := pageParams(c, 100, 500)
		lo, hi := window(offset, limit, len(runs))

		pg := Pagination{Offset: offset, Limit: limit, Total: len(runs)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: runs[lo:hi], Pagination: pg})
	}
}

// TargetRunsHandler returns the layer runs of one target.
func TargetRunsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		target, err := url.PathUnescape(c.Params("target"))
		if err != nil {
			return newError(c, fiber.StatusBadRequest, "bad_request", "invalid target")
		}

		runs, err := deps.Runs.ForTarget(c.UserContext(), target)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list target runs", "target", target, "error", err)
			return errInternal(c, "could not list runs")
		}
		if len(runs) == 0 {
			return errNotFound(c, "no runs for target "+target)
		}

		return c.JSON(fiber.Map{
			"target": target,
			"done":   allDone(runs),
			"layers": runs,
		})
	}
}

// TargetProgressHandler returns the latest reconciliation event per layer.
func TargetProgressHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Progress == nil {
			return errUnavailable(c, "progress tracking not configured")
		}
		target, err := url.PathUnescape(c.Params("target"))
		if err != nil {
			return newError(c, fiber.StatusBadRequest, "bad_request", "invalid target")
		}

		events, err := deps.Progress.ForTarget(c.UserContext(), target)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("read progress", "target", target, "error", err)
			return errInternal(c, "could not read progress")
		}
		return c.JSON(fiber.Map{
			"target": target,
			"layers": events,
		})
	}
}

func allDone(runs []domain.Run) bool {
	for _, r := range runs {
		if r.Status != domain.RunStatusDone {
			return false
		}
	}
	return true
}
