package xhttp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func requestTo(path, token string) *RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(path)
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	return ctx
}

func TestAuthenticator_IssueAndParse(t *testing.T) {
	a := NewAuthenticator("secret", "vendzz")

	token, err := a.Issue(7, RoleAdmin, time.Minute)
	require.NoError(t, err)
	claims, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = NewAuthenticator("other", "vendzz").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewAuthenticator("secret", "someone-else").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := a.Issue(7, "", -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	zero, err := a.Issue(0, "", time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(zero)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Middleware(t *testing.T) {
	a := NewAuthenticator("secret", "vendzz")
	var seen int64
	var admin bool
	h := a.Middleware("/api/health")(func(ctx *RequestCtx) {
		seen, _ = UserID(ctx)
		admin = IsAdmin(ctx)
		ctx.SetStatusCode(StatusOK)
	})

	ctx := requestTo("/api/health", "")
	h(ctx)
	assert.Equal(t, StatusOK, ctx.Response.StatusCode())
	assert.Zero(t, seen)

	ctx = requestTo("/api/credits", "")
	h(ctx)
	assert.Equal(t, StatusUnauthorized, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"missing bearer token"}`, string(ctx.Response.Body()))

	ctx = requestTo("/api/credits", "garbage")
	h(ctx)
	assert.Equal(t, StatusUnauthorized, ctx.Response.StatusCode())

	token, err := a.Issue(42, "", time.Minute)
	require.NoError(t, err)
	ctx = requestTo("/api/credits", token)
	h(ctx)
	assert.Equal(t, StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, int64(42), seen)
	assert.False(t, admin)

	token, err = a.Issue(1, RoleAdmin, time.Minute)
	require.NoError(t, err)
	ctx = requestTo("/api/credits/admin/set", token)
	h(ctx)
	assert.True(t, admin)
}

func TestRequestIDMiddleware(t *testing.T) {
	var id string
	h := RequestIDMiddleware(func(ctx *RequestCtx) {
		id = string(ctx.Response.Header.Peek(RequestIDHeader))
	})

	ctx := requestTo("/api/x", "")
	h(ctx)
	assert.NotEmpty(t, id)

	ctx = requestTo("/api/x", "")
	ctx.Request.Header.Set(RequestIDHeader, "abc")
	h(ctx)
	assert.Equal(t, "abc", id)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) { panic("boom") })
	ctx := requestTo("/api/x", "")
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
}

func TestDefaultRouter_NotFound(t *testing.T) {
	r := CreateDefaultRouter()
	r.GET("/api/health", func(ctx *RequestCtx) { ctx.SetStatusCode(StatusOK) })

	ctx := requestTo("/api/missing", "")
	r.Handler(ctx)
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"Not Found"}`, string(ctx.Response.Body()))

	ctx = requestTo("/api/health", "")
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	r.Handler(ctx)
	assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())
}
