package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/bsocio/campaign-service/internal/service/campaigns"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type campaignHandlers struct {
	svc *campaigns.Service
	log *zap.Logger
}

type campaignReq struct {
	Subject       string                 `json:"subject"`
	Content       string                 `json:"content"`
	Audience      string                 `json:"audience"`
	Filters       *model.AudienceFilters `json:"filters"`
	TargetUserIDs []int64                `json:"target_user_ids"`
	SendType      string                 `json:"send_type"`
	ScheduledAt   *time.Time             `json:"scheduled_at"`
}

func (r campaignReq) toInput() campaigns.CreateInput {
	return campaigns.CreateInput{
		Subject:       r.Subject,
		Content:       r.Content,
		Audience:      r.Audience,
		Filters:       r.Filters,
		TargetUserIDs: r.TargetUserIDs,
		SendType:      r.SendType,
		ScheduledAt:   r.ScheduledAt,
	}
}

func campaignIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// writeErr maps service errors onto status codes.
func (h *campaignHandlers) writeErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrCampaignNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
	case errors.Is(err, campaigns.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, campaigns.ErrNotDraft):
		return c.JSON(http.StatusConflict, map[string]string{"error": "campaign is not a draft"})
	case errors.Is(err, campaigns.ErrAlreadySent):
		return c.JSON(http.StatusConflict, map[string]string{"error": "campaign already sent"})
	case errors.Is(err, campaigns.ErrDispatchInFlight):
		return c.JSON(http.StatusConflict, map[string]string{"error": "dispatch already in flight"})
	default:
		h.log.Error("campaign handler error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *campaignHandlers) create(c echo.Context) error {
	var req campaignReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
	}

	created, err := h.svc.Create(c.Request().Context(), req.toInput())
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *campaignHandlers) list(c echo.Context) error {
	limit := 20
	offset := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	status := model.CampaignStatus(c.QueryParam("status"))

	rows, total, err := h.svc.List(c.Request().Context(), status, limit, offset)
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"limit":   limit,
		"offset":  offset,
		"total":   total,
		"results": rows,
	})
}

func (h *campaignHandlers) get(c echo.Context) error {
	id, ok := campaignIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	campaign, stats, err := h.svc.GetWithStats(c.Request().Context(), id)
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"campaign": campaign,
		"stats":    stats,
	})
}

func (h *campaignHandlers) update(c echo.Context) error {
	id, ok := campaignIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var req campaignReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
	}

	updated, err := h.svc.Update(c.Request().Context(), id, req.toInput())
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *campaignHandlers) delete(c echo.Context) error {
	id, ok := campaignIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *campaignHandlers) send(c echo.Context) error {
	id, ok := campaignIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	jobID, err := h.svc.Send(c.Request().Context(), id)
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"enqueued":    true,
		"job_id":      jobID,
		"campaign_id": id,
	})
}

func (h *campaignHandlers) schedule(c echo.Context) error {
	id, ok := campaignIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	var req struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := c.Bind(&req); err != nil || req.ScheduledAt == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "scheduled_at is required"})
	}

	scheduled, err := h.svc.Schedule(c.Request().Context(), id, *req.ScheduledAt)
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusOK, scheduled)
}

func (h *campaignHandlers) previewRecipients(c echo.Context) error {
	id, ok := campaignIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	preview, err := h.svc.PreviewRecipients(c.Request().Context(), id, limit)
	if err != nil {
		return h.writeErr(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}
