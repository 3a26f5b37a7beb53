package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/labkha-cpu/ai-Apply/internal/services"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// Stage2Queue hands a stage 2 request to the workers and returns a request id.
type Stage2Queue func(ctx context.Context, candidateID string) (string, error)

type CandidateHandler struct {
	profiles services.ProfileService
	reports  services.ReportService
	stage1   services.Stage1Watcher
	stage2   services.Stage2Service
	enqueue  Stage2Queue
}

func NewCandidateHandler(profiles services.ProfileService, reports services.ReportService, stage1 services.Stage1Watcher, stage2 services.Stage2Service, enqueue Stage2Queue) *CandidateHandler {
	return &CandidateHandler{profiles: profiles, reports: reports, stage1: stage1, stage2: stage2, enqueue: enqueue}
}

type statusResponse struct {
	*services.Snapshot
	Stage2Polling bool `json:"stage2_polling"`
}

func (h *CandidateHandler) Status(c *gin.Context) {
	id, ok := requireCandidateID(c, "CandidateHandler.Status")
	if !ok {
		return
	}

	snap, err := h.profiles.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Snapshot: snap, Stage2Polling: h.stage2.Active(id)})
}

func (h *CandidateHandler) Audit(c *gin.Context) {
	id, ok := requireCandidateID(c, "CandidateHandler.Audit")
	if !ok {
		return
	}

	rep, err := h.reports.Audit(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *CandidateHandler) Diff(c *gin.Context) {
	id, ok := requireCandidateID(c, "CandidateHandler.Diff")
	if !ok {
		return
	}

	rep, err := h.reports.Diff(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *CandidateHandler) Artifact(c *gin.Context) {
	const op = "CandidateHandler.Artifact"

	id, ok := requireCandidateID(c, op)
	if !ok {
		return
	}
	typ := c.Param("type")
	if typ == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing artifact type", nil))
		return
	}

	link, err := h.profiles.ArtifactLink(c.Request.Context(), id, typ)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *CandidateHandler) WatchStage1(c *gin.Context) {
	id, ok := requireCandidateID(c, "CandidateHandler.WatchStage1")
	if !ok {
		return
	}

	pollID, err := h.stage1.Watch(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"candidate_id": id, "poll_id": pollID})
}

func (h *CandidateHandler) RequestStage2(c *gin.Context) {
	const op = "CandidateHandler.RequestStage2"

	id, ok := requireCandidateID(c, op)
	if !ok {
		return
	}
	if h.stage2.Active(id) {
		writeError(c, utils.E(utils.CodeConflict, op, "stage 2 is already being followed for this candidate", nil))
		return
	}

	reqID, err := h.enqueue(c.Request.Context(), id)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "failed to enqueue stage 2 request", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"candidate_id": id, "request_id": reqID})
}

func (h *CandidateHandler) StopStage2(c *gin.Context) {
	id, ok := requireCandidateID(c, "CandidateHandler.StopStage2")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidate_id": id, "stopped": h.stage2.Stop(id)})
}

func (h *CandidateHandler) Events(c *gin.Context) {
	id, ok := requireCandidateID(c, "CandidateHandler.Events")
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	evs, err := h.stage2.History(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidate_id": id, "events": evs})
}
