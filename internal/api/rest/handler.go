package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokenforge/presale-engine/internal/api/rest/dto"
	"github.com/tokenforge/presale-engine/internal/domain"
	"github.com/tokenforge/presale-engine/internal/engine"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// ListTiers returns all configured tiers
	// GET /api/v1/tiers
	ListTiers(c *gin.Context)

	// GetActiveTier returns the currently active tier
	// GET /api/v1/tiers/active
	GetActiveTier(c *gin.Context)

	// SubmitPurchase admits a purchase into its target tier
	// POST /api/v1/purchases
	SubmitPurchase(c *gin.Context)

	// SubmitClaim settles everything currently claimable for a buyer
	// POST /api/v1/claims
	SubmitClaim(c *gin.Context)

	// GetBuyerPurchases returns a buyer's purchase history
	// GET /api/v1/buyers/:address/purchases
	GetBuyerPurchases(c *gin.Context)

	// GetBuyerClaimable previews a buyer's vesting position
	// GET /api/v1/buyers/:address/claimable
	GetBuyerClaimable(c *gin.Context)

	// GetBuyerMilestones projects a buyer's unlock schedule
	// GET /api/v1/buyers/:address/milestones
	GetBuyerMilestones(c *gin.Context)

	// ListBuyers returns every buyer address in the purchase log
	// GET /api/v1/admin/buyers
	ListBuyers(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	engine engine.Engine
}

// NewHandler creates a new REST API handler over the presale engine
func NewHandler(eng engine.Engine) Handler {
	return &handler{
		engine: eng,
	}
}

// ListTiers returns all configured tiers
func (h *handler) ListTiers(c *gin.Context) {
	tiers, err := h.engine.ListTiers(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list tiers")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tiers": dto.NewTierResponses(tiers)})
}

// GetActiveTier returns the currently active tier
func (h *handler) GetActiveTier(c *gin.Context) {
	tier, err := h.engine.ActiveTier(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to determine active tier")
		return
	}

	if tier == nil {
		respondNotFound(c, "No tier is currently active")
		return
	}

	c.JSON(http.StatusOK, dto.NewTierResponse(*tier))
}

// SubmitPurchase admits a purchase into its target tier
func (h *handler) SubmitPurchase(c *gin.Context) {
	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	// Keep the original request alongside the ledger record
	raw, err := json.Marshal(req)
	if err != nil {
		respondInternalError(c, err, "Failed to encode request")
		return
	}

	record, err := h.engine.SubmitPurchase(c.Request.Context(), engine.PurchaseRequest{
		Buyer:  req.Buyer,
		TierID: req.TierID,
		Amount: amount,
		Raw:    raw,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewPurchaseResponse(*record))
}

// SubmitClaim settles everything currently claimable for a buyer
func (h *handler) SubmitClaim(c *gin.Context) {
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	result, err := h.engine.SubmitClaim(c.Request.Context(), req.Buyer)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewClaimResponse(result))
}

// GetBuyerPurchases returns a buyer's purchase history
func (h *handler) GetBuyerPurchases(c *gin.Context) {
	purchases, err := h.engine.Purchases(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": dto.NewPurchaseResponses(purchases)})
}

// GetBuyerClaimable previews a buyer's vesting position
func (h *handler) GetBuyerClaimable(c *gin.Context) {
	breakdown, err := h.engine.Claimable(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewClaimableResponse(breakdown))
}

// GetBuyerMilestones projects a buyer's unlock schedule
func (h *handler) GetBuyerMilestones(c *gin.Context) {
	milestones, err := h.engine.Milestones(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

// ListBuyers returns every buyer address in the purchase log
func (h *handler) ListBuyers(c *gin.Context) {
	buyers, err := h.engine.Buyers(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list buyers")
		return
	}

	c.JSON(http.StatusOK, gin.H{"buyers": buyers})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
