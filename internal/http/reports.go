package http

import (
	"net/http"
	"strconv"

	"github.com/bsocio/campaign-service/internal/logger"
	"github.com/bsocio/campaign-service/internal/model"
	"github.com/bsocio/campaign-service/internal/repository"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// listEventsHandler serves per-campaign delivery events out of ClickHouse.
func listEventsHandler(events repository.CHEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		status := model.EventStatus(c.QueryParam("status"))
		if status != "" && status != model.EventSent && status != model.EventFailed {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		rows, err := events.ListByCampaign(c.Request().Context(), id, status, limit, offset)
		if err != nil {
			logger.Log.Error("list campaign events", zap.Int64("campaign_id", id), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"campaign_id": id,
			"limit":       limit,
			"offset":      offset,
			"results":     rows,
		})
	}
}
