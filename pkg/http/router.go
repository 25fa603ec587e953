package xhttp

import (
	"strconv"

	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router whose unknown paths and methods are
// answered with the same JSON error shape the handlers use.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	writePlainError(ctx, StatusNotFound)
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	writePlainError(ctx, StatusMethodNotAllowed)
}

func writePlainError(ctx *RequestCtx, code int) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(code)
	ctx.Response.SetBodyString(`{"error":` + strconv.Quote(StatusText(code)) + `}`)
}
