package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
)

type ExtensionService interface {
	PendingMessages(ctx context.Context, userID int64, limit int) (*model.PendingMessages, error)
	Heartbeat(ctx context.Context, userID int64, hb model.Heartbeat) (*model.HeartbeatResult, error)
	ReportOutcome(ctx context.Context, userID int64, r model.OutcomeReport) (bool, error)
	Settings(ctx context.Context, userID int64) (model.ExtensionSettings, error)
	UpdateSettings(ctx context.Context, userID int64, s model.ExtensionSettings) (model.ExtensionSettings, error)
}

type ExtensionHandler struct {
	svc ExtensionService
}

func NewExtensionHandler(svc ExtensionService) *ExtensionHandler {
	return &ExtensionHandler{svc: svc}
}

func RegisterExtensionRoutes(e *router.Group, h *ExtensionHandler) {
	g := e.Group("/whatsapp-extension")
	g.GET("/pending-messages", h.PendingMessages)
	g.POST("/status", h.Status)
	g.POST("/logs", h.ReportLog)
	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.PutSettings)
}

func (h *ExtensionHandler) PendingMessages(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	out, err := h.svc.PendingMessages(ctx, uid, queryInt(ctx, "limit", 0, maxPageSize))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, out)
}

func (h *ExtensionHandler) Status(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	var hb model.Heartbeat
	if err := readJSON(ctx, &hb); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.Heartbeat(ctx, uid, hb)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

type reportResponse struct {
	Success bool `json:"success"`
	Applied bool `json:"applied"`
}

// ReportLog answers 200 for duplicate reports so the extension stops retrying.
func (h *ExtensionHandler) ReportLog(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	var r model.OutcomeReport
	if err := readJSON(ctx, &r); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	applied, err := h.svc.ReportOutcome(ctx, uid, r)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, reportResponse{Success: true, Applied: applied})
}

func (h *ExtensionHandler) GetSettings(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	s, err := h.svc.Settings(ctx, uid)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, s)
}

func (h *ExtensionHandler) PutSettings(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	var s model.ExtensionSettings
	if err := readJSON(ctx, &s); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	out, err := h.svc.UpdateSettings(ctx, uid, s)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, out)
}
