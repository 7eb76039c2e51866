package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ovalbet/bingo-engine/services"
)

// OracleController receives the external randomness fulfillment callback
// in external mode. The store's conditional write makes duplicate or
// late callbacks harmless.
type OracleController struct {
	store *services.Store
}

func NewOracleController(store *services.Store) *OracleController {
	return &OracleController{store: store}
}

type fulfillRequest struct {
	Seed string `json:"seed" binding:"required"`
}

// Fulfill handles POST /api/internal/randomness/:id
func (oc *OracleController) Fulfill(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round id"})
		return
	}
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, err := oc.store.FulfillRandomness(c.Request.Context(), uint(id), req.Seed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record seed"})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "round is not awaiting randomness"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "fulfilled"})
}

// StatusController reports every lane's current phase snapshot.
type StatusController struct {
	scheduler *services.Scheduler
}

func NewStatusController(scheduler *services.Scheduler) *StatusController {
	return &StatusController{scheduler: scheduler}
}

// Lanes handles GET /api/status
func (sc *StatusController) Lanes(c *gin.Context) {
	c.JSON(http.StatusOK, sc.scheduler.Snapshot(c.Request.Context()))
}
