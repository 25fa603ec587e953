package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/services"
	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
)

const maxPageSize = 500

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to status codes. Unknown errors are
// logged and hidden from the client.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, services.ErrInsufficientCredits):
		writeError(ctx, xhttp.StatusPaymentRequired, err.Error())
	case errors.As(err, &verr):
		writeError(ctx, xhttp.StatusBadRequest, verr.Error())
	case errors.Is(err, services.ErrCampaignNotFound),
		errors.Is(err, services.ErrLogNotFound),
		errors.Is(err, services.ErrUserNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		writeError(ctx, xhttp.StatusConflict, err.Error())
	default:
		logger.Error("[handlers] request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

// currentUser returns the authenticated user id or answers 401.
func currentUser(ctx *xhttp.RequestCtx) (int64, bool) {
	uid, ok := xhttp.UserID(ctx)
	if !ok {
		writeError(ctx, xhttp.StatusUnauthorized, "unauthorized")
	}
	return uid, ok
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

// queryInt returns def when the parameter is missing or not a non-negative
// integer, and caps it at max.
func queryInt(ctx *xhttp.RequestCtx, key string, def, max int) int {
	n, err := strconv.Atoi(query(ctx, key))
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
