package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"lunchbot/commands"
	"lunchbot/models"
	"lunchbot/statemachine"

	"github.com/gin-gonic/gin"
)

// RestaurantMatcher is the catalog query behind the public API.
type RestaurantMatcher interface {
	Match(ctx context.Context, crit models.Criteria) ([]models.Restaurant, error)
}

// APIHandler serves the read-only JSON API.
type APIHandler struct {
	catalog RestaurantMatcher
	logger  *slog.Logger
}

func NewAPIHandler(catalog RestaurantMatcher, logger *slog.Logger) *APIHandler {
	return &APIHandler{catalog: catalog, logger: logger}
}

// Health reports that the server is up
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "lunchbot",
	})
}

// ListRestaurants returns the catalog, optionally narrowed the same way a
// lunch session narrows it
func (h *APIHandler) ListRestaurants(c *gin.Context) {
	var crit models.Criteria
	for _, q := range []struct {
		name string
		dst  **int
	}{
		{"max_duration", &crit.TimeLimit},
		{"max_price", &crit.PriceLimit},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": q.name + " must be a non-negative integer"})
			return
		}
		*q.dst = &n
	}
	if exclude := c.Query("exclude"); exclude != "" {
		crit.ExcludedTags = commands.NormalizeTags(strings.Split(exclude, ","))
	}

	restaurants, err := h.catalog.Match(c.Request.Context(), crit)
	if err != nil {
		h.logger.Error("list restaurants failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list restaurants"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(restaurants),
		"restaurants": restaurants,
	})
}

// GetStateMachineInfo returns the conversation state machine for documentation
func (h *APIHandler) GetStateMachineInfo(c *gin.Context) {
	transitions := statemachine.GetAllTransitions()
	info := make([]gin.H, 0, len(transitions))
	for _, t := range transitions {
		from := string(t.From)
		if t.From == statemachine.None {
			from = "NONE"
		}
		info = append(info, gin.H{"from": from, "trigger": t.Trigger, "to": t.To})
	}
	c.JSON(http.StatusOK, gin.H{
		"state_machine":   info,
		"terminal_states": []models.ConversationState{models.StateDone},
		"description":     "Lunchbot conversation state machine",
	})
}
