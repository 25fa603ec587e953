package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
)

type CampaignService interface {
	Create(ctx context.Context, userID int64, ch model.Channel, req model.CampaignCreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, userID int64, ch model.Channel, id int64) (*model.CampaignWithStats, error)
	List(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error)
	Logs(ctx context.Context, userID int64, ch model.Channel, id int64, limit, offset int) ([]*model.DispatchLog, error)
	Stop(ctx context.Context, userID int64, ch model.Channel, id int64) (*model.Campaign, error)
	Resume(ctx context.Context, userID int64, ch model.Channel, id int64) (*model.Campaign, error)
	Delete(ctx context.Context, userID int64, ch model.Channel, id int64) error
}

type CampaignHandler struct {
	svc CampaignService
}

func NewCampaignHandler(svc CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc}
}

// RegisterCampaignRoutes mounts /{channel}-campaigns for every campaign channel.
func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler) {
	for _, ch := range model.CampaignChannels {
		base := "/" + string(ch) + "-campaigns"
		e.POST(base, h.create(ch))
		e.GET(base, h.list(ch))
		e.GET(base+"/{id}", h.get(ch))
		e.GET(base+"/{id}/logs", h.logs(ch))
		e.POST(base+"/{id}/stop", h.stop(ch))
		e.POST(base+"/{id}/resume", h.resume(ch))
		e.DELETE(base+"/{id}", h.delete(ch))
	}
}

type listCampaignsResponse struct {
	Items []*model.Campaign `json:"items"`
	Total int               `json:"total"`
}

type logsResponse struct {
	Items  []*model.DispatchLog `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

func (h *CampaignHandler) create(ch model.Channel) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		uid, ok := currentUser(ctx)
		if !ok {
			return
		}
		var req model.CampaignCreateRequest
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		c, err := h.svc.Create(ctx, uid, ch, req)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, xhttp.StatusCreated, c)
	}
}

func (h *CampaignHandler) list(ch model.Channel) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		uid, ok := currentUser(ctx)
		if !ok {
			return
		}
		items, err := h.svc.List(ctx, uid, ch)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		if items == nil {
			items = []*model.Campaign{}
		}
		writeJSON(ctx, xhttp.StatusOK, listCampaignsResponse{Items: items, Total: len(items)})
	}
}

func (h *CampaignHandler) get(ch model.Channel) xhttp.RequestHandler {
	return h.withCampaign(func(ctx *xhttp.RequestCtx, uid, id int64) {
		c, err := h.svc.Get(ctx, uid, ch, id)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, xhttp.StatusOK, c)
	})
}

func (h *CampaignHandler) logs(ch model.Channel) xhttp.RequestHandler {
	return h.withCampaign(func(ctx *xhttp.RequestCtx, uid, id int64) {
		limit := queryInt(ctx, "limit", 100, maxPageSize)
		offset := queryInt(ctx, "offset", 0, 0)
		items, err := h.svc.Logs(ctx, uid, ch, id, limit, offset)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		if items == nil {
			items = []*model.DispatchLog{}
		}
		writeJSON(ctx, xhttp.StatusOK, logsResponse{Items: items, Limit: limit, Offset: offset})
	})
}

func (h *CampaignHandler) stop(ch model.Channel) xhttp.RequestHandler {
	return h.withCampaign(func(ctx *xhttp.RequestCtx, uid, id int64) {
		c, err := h.svc.Stop(ctx, uid, ch, id)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, xhttp.StatusOK, c)
	})
}

func (h *CampaignHandler) resume(ch model.Channel) xhttp.RequestHandler {
	return h.withCampaign(func(ctx *xhttp.RequestCtx, uid, id int64) {
		c, err := h.svc.Resume(ctx, uid, ch, id)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, xhttp.StatusOK, c)
	})
}

func (h *CampaignHandler) delete(ch model.Channel) xhttp.RequestHandler {
	return h.withCampaign(func(ctx *xhttp.RequestCtx, uid, id int64) {
		if err := h.svc.Delete(ctx, uid, ch, id); err != nil {
			writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, xhttp.StatusOK, map[string]bool{"success": true})
	})
}

func (h *CampaignHandler) withCampaign(fn func(ctx *xhttp.RequestCtx, uid, id int64)) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		uid, ok := currentUser(ctx)
		if !ok {
			return
		}
		id, err := pathInt64(ctx, "id")
		if err != nil || id <= 0 {
			writeError(ctx, xhttp.StatusBadRequest, "invalid campaign id")
			return
		}
		fn(ctx, uid, id)
	}
}
