package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulsecrm/syncd/internal/application/services"
	"github.com/pulsecrm/syncd/pkg/errors"
)

// SyncHandler serves the mutation queue API
type SyncHandler struct {
	svcMgr *services.ServiceManager
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(svcMgr *services.ServiceManager) *SyncHandler {
	return &SyncHandler{svcMgr: svcMgr}
}

// Enqueue handles POST /api/sync/mutations.
// Accepts a single mutation or a batch under "mutations".
func (h *SyncHandler) Enqueue(c *gin.Context) {
	device := GetDeviceFromContext(c)

	var req struct {
		services.EnqueueRequest
		Mutations []services.EnqueueRequest `json:"mutations"`
	}
	if !BindJSON(c, &req) {
		return
	}

	batch := req.Mutations
	if len(batch) == 0 {
		if req.Operation == "" && req.Entity == "" {
			RespondAppError(c, errors.NewValidationError("body", "expected a mutation or a 'mutations' batch"))
			return
		}
		batch = []services.EnqueueRequest{req.EnqueueRequest}
	}

	// All-or-nothing: one invalid entry rejects the whole request before
	// anything is written, so the client's local queue and ours never
	// diverge silently.
	accepted, err := h.svcMgr.Sync.EnqueueBatch(c.Request.Context(), device.ID, batch)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"mutations": accepted})
}

// List handles GET /api/sync/mutations
func (h *SyncHandler) List(c *gin.Context) {
	device := GetDeviceFromContext(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	status := c.Query("status")
	entity := c.Query("entity")

	HandleGetEnvelope(c, "mutations", func() (interface{}, error) {
		return h.svcMgr.Sync.List(c.Request.Context(), device.ID, status, entity, limit)
	})
}

// Flush handles POST /api/sync/flush
func (h *SyncHandler) Flush(c *gin.Context) {
	started := h.svcMgr.Sync.TriggerFlush()
	c.JSON(http.StatusAccepted, gin.H{
		"started": started,
		"message": flushMessage(started),
	})
}

func flushMessage(started bool) string {
	if started {
		return "Flush started"
	}
	return "Flush already in progress"
}

// Retry handles POST /api/sync/mutations/:id/retry
func (h *SyncHandler) Retry(c *gin.Context) {
	device := GetDeviceFromContext(c)
	id := c.Param("id")

	if err := h.svcMgr.Sync.Retry(c.Request.Context(), device.ID, id); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mutation queued for retry"})
}

// Cancel handles DELETE /api/sync/mutations/:id
func (h *SyncHandler) Cancel(c *gin.Context) {
	device := GetDeviceFromContext(c)
	id := c.Param("id")

	HandleDeleteEnvelope(c, "Mutation cancelled", func() error {
		return h.svcMgr.Sync.Cancel(c.Request.Context(), device.ID, id)
	})
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	HandleGetEnvelope(c, "status", func() (interface{}, error) {
		return h.svcMgr.Sync.Status(c.Request.Context())
	})
}
