package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/tokenforge/presale-engine/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Tier endpoints (public read access)
		v1.GET("/tiers", handler.ListTiers)
		v1.GET("/tiers/active", handler.GetActiveTier)

		// Purchase and claim submission (open; the ledger enforces all rules)
		v1.POST("/purchases", handler.SubmitPurchase)
		v1.POST("/claims", handler.SubmitClaim)

		// Buyer read models (requires authentication: purchase history is
		// not public)
		buyers := v1.Group("/buyers", middleware.Auth(authCfg))
		{
			buyers.GET("/:address/purchases", handler.GetBuyerPurchases)
			buyers.GET("/:address/claimable", handler.GetBuyerClaimable)
			buyers.GET("/:address/milestones", handler.GetBuyerMilestones)
		}

		// Operator surface (API key only; never exposed to end-user tokens)
		admin := v1.Group("/admin", middleware.APIKeyAuth(authCfg))
		{
			admin.GET("/buyers", handler.ListBuyers)
		}
	}
}
