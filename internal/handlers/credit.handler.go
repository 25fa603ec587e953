package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
)

type CreditService interface {
	Balance(ctx context.Context, userID int64) (*model.CreditBalance, error)
	Purchase(ctx context.Context, userID int64, req model.PurchaseRequest) (*model.CreditBalance, error)
	AdminSet(ctx context.Context, req model.AdminCreditRequest) (*model.CreditBalance, error)
	AdminAdd(ctx context.Context, req model.AdminCreditRequest) (*model.CreditBalance, error)
}

type CreditHandler struct {
	svc CreditService
}

func NewCreditHandler(svc CreditService) *CreditHandler {
	return &CreditHandler{svc: svc}
}

func RegisterCreditRoutes(e *router.Group, h *CreditHandler) {
	e.GET("/credits", h.GetBalance)
	g := e.Group("/credits")
	g.GET("/packages", h.ListPackages)
	g.POST("/purchase", h.Purchase)
	g.POST("/admin/set", h.adminOnly(h.AdminSet))
	g.POST("/admin/add", h.adminOnly(h.AdminAdd))
}

func (h *CreditHandler) GetBalance(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	b, err := h.svc.Balance(ctx, uid)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *CreditHandler) ListPackages(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, model.CreditPackages())
}

func (h *CreditHandler) Purchase(ctx *xhttp.RequestCtx) {
	uid, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req model.PurchaseRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	b, err := h.svc.Purchase(ctx, uid, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *CreditHandler) AdminSet(ctx *xhttp.RequestCtx) {
	h.admin(ctx, h.svc.AdminSet)
}

func (h *CreditHandler) AdminAdd(ctx *xhttp.RequestCtx) {
	h.admin(ctx, h.svc.AdminAdd)
}

func (h *CreditHandler) admin(ctx *xhttp.RequestCtx, fn func(context.Context, model.AdminCreditRequest) (*model.CreditBalance, error)) {
	var req model.AdminCreditRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	b, err := fn(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *CreditHandler) adminOnly(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		if _, ok := currentUser(ctx); !ok {
			return
		}
		if !xhttp.IsAdmin(ctx) {
			writeError(ctx, xhttp.StatusForbidden, "admin only")
			return
		}
		next(ctx)
	}
}
