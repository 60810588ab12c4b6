package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/steps"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

type PipelineHandler struct {
	log      *logger.Logger
	deps     steps.Deps
	sessions *graph.Registry
}

func NewPipelineHandler(log *logger.Logger, deps steps.Deps, sessions *graph.Registry) *PipelineHandler {
	return &PipelineHandler{
		log:      log.With("handler", "PipelineHandler"),
		deps:     deps,
		sessions: sessions,
	}
}

func (h *PipelineHandler) session(c *gin.Context) (*graph.Store, bool) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid session id"})
		return nil, false
	}
	return h.sessions.GetOrCreate(sessionID), true
}

// RunStep executes one generation step for a session.
// POST /api/pipeline/:sessionID/steps/:kind
func (h *PipelineHandler) RunStep(c *gin.Context) {
	store, ok := h.session(c)
	if !ok {
		return
	}
	var payload domain.StepPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	kind := domain.GenerationKind(c.Param("kind"))
	out, err := steps.Run(c.Request.Context(), h.deps, store, kind, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type selectionRequest struct {
	IDs          []string `json:"ids"`
	Add          string   `json:"add,omitempty"`
	Remove       string   `json:"remove,omitempty"`
	ProblemID    string   `json:"problem_id,omitempty"`
	SuggestionID string   `json:"suggestion_id,omitempty"`
	Unlock       bool     `json:"unlock,omitempty"`
}

// ChangeSelection commits a selection transition on one node.
// POST /api/pipeline/:sessionID/selection/:node
func (h *PipelineHandler) ChangeSelection(c *gin.Context) {
	store, ok := h.session(c)
	if !ok {
		return
	}
	node := graph.Node(c.Param("node"))
	if !graph.Valid(node) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "unknown node"})
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	if node == graph.NodeSelectedSolutions {
		if req.Unlock {
			store.UnlockSolution(req.ProblemID)
			c.JSON(http.StatusOK, gin.H{"status": "unlocked"})
			return
		}
		if err := store.SelectSolution(req.ProblemID, req.SuggestionID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "selected"})
		return
	}

	var (
		changed bool
		err     error
	)
	switch {
	case req.Add != "":
		err = store.AddSelection(node, req.Add)
		changed = err == nil
	case req.Remove != "":
		err = store.RemoveSelection(node, req.Remove)
		changed = err == nil
	default:
		changed, err = store.ChangeSelection(node, req.IDs)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

type regenerateRequest struct {
	domain.StepPayload
	ProblemID string `json:"problem_id,omitempty"`
}

// Regenerate replaces a node's free suggestions with a fresh batch.
// POST /api/pipeline/:sessionID/regenerate/:node
func (h *PipelineHandler) Regenerate(c *gin.Context) {
	store, ok := h.session(c)
	if !ok {
		return
	}
	var req regenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	in := steps.RegenerateInput{Store: store, Payload: req.StepPayload, ProblemID: req.ProblemID}

	var (
		out steps.SuggestionsOutput
		err error
	)
	switch graph.Node(c.Param("node")) {
	case graph.NodeProblemSuggestions:
		out, err = steps.RegenerateProblemTitles(c.Request.Context(), h.deps, in)
	case graph.NodeSolutionSuggestions:
		out, err = steps.RegenerateSolutionTitles(c.Request.Context(), h.deps, in)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "node does not support regeneration"})
		return
	}
	if errors.Is(err, graph.ErrNothingToRegenerate) {
		c.JSON(http.StatusOK, gin.H{"status": "nothing_to_regenerate"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetState returns the full session snapshot.
// GET /api/pipeline/:sessionID
func (h *PipelineHandler) GetState(c *gin.Context) {
	store, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, store.Snapshot())
}
