package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ovalbet/bingo-engine/models"
	"github.com/ovalbet/bingo-engine/services"
)

// RoundController serves the produced query surface: rounds, cards and
// the public verification payload.
type RoundController struct {
	store *services.Store
}

func NewRoundController(store *services.Store) *RoundController {
	return &RoundController{store: store}
}

// List handles GET /api/rounds?status=&room=&limit=
func (rc *RoundController) List(c *gin.Context) {
	status := models.RoundStatus(c.Query("status"))
	room, _ := strconv.Atoi(c.Query("room"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rounds, err := rc.store.Rounds(c.Request.Context(), status, room, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rounds"})
		return
	}
	c.JSON(http.StatusOK, rounds)
}

// Get handles GET /api/rounds/:id
func (rc *RoundController) Get(c *gin.Context) {
	round, ok := rc.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, round)
}

// Cards handles GET /api/rounds/:id/cards
func (rc *RoundController) Cards(c *gin.Context) {
	round, ok := rc.lookup(c)
	if !ok {
		return
	}
	cards, err := rc.store.CardsByRound(c.Request.Context(), round.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cards"})
		return
	}
	c.JSON(http.StatusOK, cards)
}

// CardsByOwner handles GET /api/cards?owner=
func (rc *RoundController) CardsByOwner(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}
	cards, err := rc.store.CardsByOwner(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cards"})
		return
	}
	c.JSON(http.StatusOK, cards)
}

type buyRequest struct {
	Wallet string `json:"wallet" binding:"required"`
	Count  int    `json:"count" binding:"required,min=1"`
}

// Buy handles POST /api/rounds/:id/cards
func (rc *RoundController) Buy(c *gin.Context) {
	round, ok := rc.lookup(c)
	if !ok {
		return
	}
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cards, err := rc.store.BuyCards(c.Request.Context(), round.ID, req.Wallet, req.Count)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, cards)
	case errors.Is(err, services.ErrRoundNotOpen),
		errors.Is(err, services.ErrBuyWindowClosed),
		errors.Is(err, services.ErrInvalidCardCount),
		errors.Is(err, services.ErrMaxCardsExceeded),
		errors.Is(err, services.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purchase failed"})
	}
}

type verificationCard struct {
	CardID       uint  `json:"card_id"`
	Numbers      []int `json:"numbers"`
	LineHitBall  *int  `json:"line_hit_ball"`
	BingoHitBall *int  `json:"bingo_hit_ball"`
}

type verificationPayload struct {
	RoundID    uint               `json:"round_id"`
	RandomSeed string             `json:"random_seed"`
	DrawnBalls []int              `json:"drawn_balls"`
	Cards      []verificationCard `json:"cards"`
}

// Verification handles GET /api/rounds/:id/verification. The payload is
// sufficient for any third party to re-run the draw and confirm the
// published winners from the seed alone.
func (rc *RoundController) Verification(c *gin.Context) {
	round, ok := rc.lookup(c)
	if !ok {
		return
	}
	if round.Status != models.RoundDrawing && round.Status != models.RoundResolved {
		c.JSON(http.StatusConflict, gin.H{"error": "round has not been drawn"})
		return
	}
	cards, err := rc.store.CardsByRound(c.Request.Context(), round.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cards"})
		return
	}

	payload := verificationPayload{
		RoundID:    round.ID,
		RandomSeed: round.RandomSeed,
		DrawnBalls: round.BallSequence(),
		Cards:      make([]verificationCard, 0, len(cards)),
	}
	for _, card := range cards {
		payload.Cards = append(payload.Cards, verificationCard{
			CardID:       card.ID,
			Numbers:      card.NumberList(),
			LineHitBall:  card.LineHitBall,
			BingoHitBall: card.BingoHitBall,
		})
	}
	c.JSON(http.StatusOK, payload)
}

func (rc *RoundController) lookup(c *gin.Context) (*models.Round, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round id"})
		return nil, false
	}
	round, err := rc.store.GetRound(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrRoundNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "round not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load round"})
		}
		return nil, false
	}
	return round, true
}
