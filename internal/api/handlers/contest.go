package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradeclash/contest-engine/internal/contest"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/settlement"
)

// ContestHandler serves the contest read surface and the enrollment
// endpoint.
type ContestHandler struct {
	registry    *contest.Registry
	engine      *contest.StatusEngine
	enrollment  *contest.Enrollment
	coordinator *settlement.Coordinator
}

func NewContestHandler(registry *contest.Registry, engine *contest.StatusEngine, enrollment *contest.Enrollment, coordinator *settlement.Coordinator) *ContestHandler {
	return &ContestHandler{
		registry:    registry,
		engine:      engine,
		enrollment:  enrollment,
		coordinator: coordinator,
	}
}

// ContestSummary is a contest definition annotated with its derived
// phase and participant count.
type ContestSummary struct {
	models.ContestDefinition
	Phase        models.ContestPhase `json:"phase"`
	Participants int                 `json:"participants"`
}

// EnterRequest is the enrollment request body.
type EnterRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// List returns every open contest with its current phase.
func (h *ContestHandler) List(c *gin.Context) {
	now := time.Now()
	defs := h.registry.GetOpenContests()

	summaries := make([]ContestSummary, 0, len(defs))
	for _, def := range defs {
		phase, err := h.engine.Phase(&def, now)
		if err != nil {
			continue
		}
		participants, _ := h.registry.Participants(def.ID)
		summaries = append(summaries, ContestSummary{
			ContestDefinition: def,
			Phase:             phase,
			Participants:      len(participants),
		})
	}
	c.JSON(http.StatusOK, gin.H{"contests": summaries, "count": len(summaries)})
}

// Get returns a single contest with its phase.
func (h *ContestHandler) Get(c *gin.Context) {
	def, err := h.registry.GetContest(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not found"})
		return
	}

	phase, err := h.engine.Phase(def, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	participants, _ := h.registry.Participants(def.ID)

	c.JSON(http.StatusOK, ContestSummary{
		ContestDefinition: *def,
		Phase:             phase,
		Participants:      len(participants),
	})
}

// Phase returns only the contest's derived phase, for cheap polling.
func (h *ContestHandler) Phase(c *gin.Context) {
	def, err := h.registry.GetContest(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not found"})
		return
	}

	now := time.Now()
	phase, err := h.engine.Phase(def, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contest_id": def.ID,
		"phase":      phase,
		"as_of":      now,
	})
}

// Enter registers a user into a contest.
func (h *ContestHandler) Enter(c *gin.Context) {
	var req EnterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	participant, err := h.enrollment.Enter(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, contest.ErrContestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "contest not found"})
		case errors.Is(err, contest.ErrRegistrationClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "registration is closed"})
		case errors.Is(err, contest.ErrContestFull):
			c.JSON(http.StatusConflict, gin.H{"error": "contest is full"})
		case errors.Is(err, contest.ErrDuplicateParticipant):
			c.JSON(http.StatusConflict, gin.H{"error": "already registered"})
		case errors.Is(err, contest.ErrPaymentDeclined):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment declined"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, participant)
}

// Settlement returns the settlement result of a contest.
func (h *ContestHandler) Settlement(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.registry.GetContest(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not found"})
		return
	}

	result, ok := h.coordinator.Result(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not settled"})
		return
	}
	c.JSON(http.StatusOK, result)
}
