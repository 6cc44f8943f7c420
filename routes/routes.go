package routes

import (
	"lunchbot/handlers"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every endpoint. verify guards the Slack webhooks
// and may be nil when no signing secret is configured.
func SetupRoutes(r *gin.Engine, slackHandler *handlers.SlackHandler, api *handlers.APIHandler, verify gin.HandlerFunc) {
	r.GET("/health", api.Health)

	// ── Slack webhooks ─────────────────────────────────────────────
	webhooks := r.Group("/slack")
	if verify != nil {
		webhooks.Use(verify)
	}
	{
		webhooks.POST("/commands", slackHandler.SlashCommand)
		webhooks.POST("/actions", slackHandler.Interaction)
	}

	// ── Public JSON API ────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.GET("/restaurants", api.ListRestaurants)
		public.GET("/state-machine", api.GetStateMachineInfo)
	}
}
