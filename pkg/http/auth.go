package xhttp

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey = "auth.uid"
	roleKey   = "auth.role"

	RoleAdmin = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

func (a *Authenticator) Issue(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := new(Claims)
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token, except for the
// given path prefixes.
func (a *Authenticator) Middleware(public ...string) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			path := string(ctx.Path())
			for _, p := range public {
				if strings.HasPrefix(path, p) {
					next(ctx)
					return
				}
			}

			header := ctx.Request.Header.Peek("Authorization")
			if !bytes.HasPrefix(header, []byte("Bearer ")) {
				writeAuthError(ctx, "missing bearer token")
				return
			}
			claims, err := a.Parse(string(bytes.TrimSpace(header[len("Bearer "):])))
			if err != nil {
				writeAuthError(ctx, err.Error())
				return
			}
			SetUser(ctx, claims.UserID, claims.Role)
			next(ctx)
		}
	}
}

func SetUser(ctx *RequestCtx, userID int64, role string) {
	ctx.SetUserValue(userIDKey, userID)
	ctx.SetUserValue(roleKey, role)
}

func UserID(ctx *RequestCtx) (int64, bool) {
	id, ok := ctx.UserValue(userIDKey).(int64)
	return id, ok && id > 0
}

func IsAdmin(ctx *RequestCtx) bool {
	role, _ := ctx.UserValue(roleKey).(string)
	return role == RoleAdmin
}

func writeAuthError(ctx *RequestCtx, msg string) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(StatusUnauthorized)
	ctx.Response.SetBodyString(`{"error":` + strconv.Quote(msg) + `}`)
}
