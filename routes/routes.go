package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/ovalbet/bingo-engine/controllers"
	"github.com/ovalbet/bingo-engine/services"
)

// SetupRoutes wires the query surface, the purchase endpoint, the oracle
// callback and the room watch stream.
func SetupRoutes(r *gin.Engine, store *services.Store, scheduler *services.Scheduler, watch *services.RoomWatch) {
	rounds := controllers.NewRoundController(store)
	oracle := controllers.NewOracleController(store)
	status := controllers.NewStatusController(scheduler)

	api := r.Group("/api")
	{
		api.GET("/rounds", rounds.List)
		api.GET("/rounds/:id", rounds.Get)
		api.GET("/rounds/:id/cards", rounds.Cards)
		api.POST("/rounds/:id/cards", rounds.Buy)
		api.GET("/rounds/:id/verification", rounds.Verification)
		api.GET("/cards", rounds.CardsByOwner)
		api.GET("/status", status.Lanes)
		api.POST("/internal/randomness/:id", oracle.Fulfill)
	}

	r.GET("/ws/rooms/:room", watch.Handle)
}
