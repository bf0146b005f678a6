package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/geomark-lab/geomark-api/internal/dto"
	"github.com/geomark-lab/geomark-api/internal/grading"
	"github.com/geomark-lab/geomark-api/internal/models"
	"github.com/geomark-lab/geomark-api/internal/service"
	"github.com/geomark-lab/geomark-api/internal/utils"
)

const eventStreamInterval = 500 * time.Millisecond

// BatchHandler exposes grading batch endpoints including the websocket
// event stream.
type BatchHandler struct {
	service service.BatchService
	logger  zerolog.Logger
}

// NewBatchHandler constructs a batch handler.
func NewBatchHandler(service service.BatchService, logger zerolog.Logger) *BatchHandler {
	return &BatchHandler{
		service: service,
		logger:  logger.With().Str("component", "batch_handler").Logger(),
	}
}

// Register binds batch routes under the provided router group.
func (h *BatchHandler) Register(router fiber.Router) {
	router.Post("", h.start)
	router.Get("/:id", h.summary)
	router.Get("/:id/events", h.events)
	router.Get("/:id/results", h.results)
	router.Post("/:id/pause", h.pause)
	router.Post("/:id/resume", h.resume)
	router.Post("/:id/cancel", h.cancel)
	router.Post("/:id/retry", h.retryFailed)

	router.Use("/:id/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("batch_id", c.Params("id"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/:id/ws", websocket.New(h.streamEvents))
}

func (h *BatchHandler) start(c *fiber.Ctx) error {
	var payload dto.StartBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.StartBatch(c.Context(), payload)
	if err != nil {
		if errors.Is(err, service.ErrProviderUnavailable) {
			return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "batch started", response)
}

func (h *BatchHandler) summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.Params("id"))
	if err != nil {
		return h.sendBatchError(c, err)
	}
	return utils.SendSuccess(c, "batch summary", summary)
}

func (h *BatchHandler) events(c *fiber.Ctx) error {
	events, err := h.service.PollEvents(c.Params("id"))
	if err != nil {
		return h.sendBatchError(c, err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return utils.SendSuccess(c, "batch events", events)
}

func (h *BatchHandler) results(c *fiber.Ctx) error {
	results, err := h.service.Results(c.Params("id"))
	if err != nil {
		return h.sendBatchError(c, err)
	}
	if results == nil {
		results = []models.GradingResult{}
	}
	return utils.SendSuccess(c, "batch results", results)
}

func (h *BatchHandler) pause(c *fiber.Ctx) error {
	if err := h.service.Pause(c.Params("id")); err != nil {
		return h.sendBatchError(c, err)
	}
	return utils.SendSuccess(c, "batch paused", nil)
}

func (h *BatchHandler) resume(c *fiber.Ctx) error {
	if err := h.service.Resume(c.Params("id")); err != nil {
		return h.sendBatchError(c, err)
	}
	return utils.SendSuccess(c, "batch resumed", nil)
}

func (h *BatchHandler) cancel(c *fiber.Ctx) error {
	if err := h.service.Cancel(c.Params("id")); err != nil {
		return h.sendBatchError(c, err)
	}
	return utils.SendSuccess(c, "batch cancelled", nil)
}

func (h *BatchHandler) retryFailed(c *fiber.Ctx) error {
	if err := h.service.RetryFailed(c.Params("id")); err != nil {
		return h.sendBatchError(c, err)
	}
	return utils.SendSuccess(c, "retrying failed students", nil)
}

// streamEvents pushes batch events over a websocket until the batch reaches
// a terminal state or the client disconnects.
func (h *BatchHandler) streamEvents(conn *websocket.Conn) {
	defer conn.Close()

	batchID, _ := conn.Locals("batch_id").(string)
	if batchID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "batch id missing"))
		return
	}

	h.logger.Info().Str("batch_id", batchID).Msg("event stream connected")

	ticker := time.NewTicker(eventStreamInterval)
	defer ticker.Stop()

	for range ticker.C {
		events, err := h.service.PollEvents(batchID)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusNotFound, "batch not found"))
			return
		}

		done := false
		for _, event := range events {
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Str("batch_id", batchID).Msg("event stream client gone")
				return
			}
			if event.Kind == models.EventBatchCompleted || event.Kind == models.EventBatchError {
				done = true
			}
		}
		if done {
			h.logger.Info().Str("batch_id", batchID).Msg("event stream finished")
			return
		}
	}
}

func (h *BatchHandler) sendBatchError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrBatchNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "batch not found")
	case errors.Is(err, grading.ErrBatchNotRunning),
		errors.Is(err, grading.ErrBatchAlreadyRunning),
		errors.Is(err, grading.ErrBatchStillRunning),
		errors.Is(err, grading.ErrNoFailedStudents):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("batch operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "batch operation failed")
	}
}
