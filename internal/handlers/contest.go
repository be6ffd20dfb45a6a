package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"contest-miniapp-backend/internal/contest"
	"contest-miniapp-backend/internal/models"
)

// SettlementHistory serves recent winners after a restart, when the
// orchestrator's in-memory list is still empty.
type SettlementHistory interface {
	RecentSettlements(ctx context.Context, limit int64) ([]models.Settlement, error)
}

type ContestHandler struct {
	orch     *contest.Orchestrator
	history  SettlementHistory
	maxTopUp decimal.Decimal
}

func NewContestHandler(orch *contest.Orchestrator, history SettlementHistory, maxTopUp decimal.Decimal) *ContestHandler {
	return &ContestHandler{
		orch:     orch,
		history:  history,
		maxTopUp: maxTopUp,
	}
}

func (h *ContestHandler) GetCurrentContest(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Snapshot())
}

func (h *ContestHandler) GetTiers(c *gin.Context) {
	tiers := make([]models.Tier, 0, 3)
	for _, t := range h.orch.Tiers() {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Amount.LessThan(tiers[j].Amount)
	})

	c.JSON(http.StatusOK, gin.H{
		"tiers":   tiers,
		"current": h.orch.Snapshot().Tier,
	})
}

func (h *ContestHandler) JoinContest(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.JoinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid request",
			})
			return
		}
	}

	participantID := models.UserParticipantID(userID)
	p := models.NewParticipant(participantID, req.Name, req.Avatar)

	balance, err := h.orch.Join(p)
	if err != nil {
		c.JSON(joinStatus(err), models.JoinResponse{
			Success:    false,
			NewBalance: balance,
			Message:    contest.JoinMessage(err),
		})
		return
	}

	c.JSON(http.StatusOK, models.JoinResponse{
		Success:    true,
		NewBalance: balance,
		Message:    contest.JoinMessage(nil),
		ContestID:  h.orch.Snapshot().ID,
	})
}

func joinStatus(err error) int {
	switch {
	case errors.Is(err, contest.ErrInsufficientBalance),
		errors.Is(err, contest.ErrAlreadyJoined):
		return http.StatusBadRequest
	case errors.Is(err, contest.ErrFull),
		errors.Is(err, contest.ErrWrongPhase):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *ContestHandler) SelectTier(c *gin.Context) {
	var req models.SelectTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request",
		})
		return
	}

	tier, err := h.orch.SelectTier(req.Tier)
	switch {
	case errors.Is(err, contest.ErrUnknownTier):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unknown tier"})
		return
	case errors.Is(err, contest.ErrTierLocked):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "Tier can only be changed before anyone joins",
			"tier":    tier,
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to select tier"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tier":    tier,
	})
}

func (h *ContestHandler) TopUp(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.TopUpResponse{Message: "Invalid request"})
		return
	}
	if err := req.Validate(h.maxTopUp); err != nil {
		c.JSON(http.StatusBadRequest, models.TopUpResponse{Message: err.Error()})
		return
	}

	balance, err := h.orch.TopUp(models.UserParticipantID(userID), req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.TopUpResponse{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.TopUpResponse{
		Success:    true,
		NewBalance: balance,
		Message:    "Added " + models.FormatSOL(req.Amount),
	})
}

func (h *ContestHandler) GetRecentWinners(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit <= 0 || limit > 50 {
		limit = 5
	}

	settlements := h.orch.Recent(limit)
	if len(settlements) == 0 && h.history != nil {
		stored, err := h.history.RecentSettlements(c.Request.Context(), int64(limit))
		if err != nil {
			log.Warn().Err(err).Msg("failed to load settlement history")
		} else {
			settlements = stored
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"winners": settlements,
		"count":   len(settlements),
	})
}
