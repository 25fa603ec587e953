package helpers

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"github.com/nimasrn/vendzz-dispatch/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

// SetupTestDB returns a migrated in-memory database shared by every service
// of a test.
func SetupTestDB(t *testing.T) *pg.DB {
	return repository.OpenTestDB(t)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.New(client, "")
}

func CreateTestUser(t *testing.T, db *pg.DB, id int64, balances repository.UserEntity) {
	balances.ID = id
	if balances.Email == "" {
		balances.Email = "owner@vendzz.test"
	}
	repository.SeedUser(t, db, &balances)
}

// CreateTestResponses stores one completed quiz response per lead.
func CreateTestResponses(t *testing.T, db *pg.DB, userID int64, quizID string, leads []map[string]any) {
	repo := repository.NewQuizResponseRepository(db)
	submitted := time.Now().UTC().Add(-time.Hour)
	for i, answers := range leads {
		require.NoError(t, repo.Create(context.Background(), &model.QuizResponse{
			ID:          quizID + "-resp-" + string(rune('a'+i)),
			QuizID:      quizID,
			UserID:      userID,
			Responses:   answers,
			IsComplete:  true,
			SubmittedAt: submitted.Add(time.Duration(i) * time.Second),
		}))
	}
}

// SMSProvider is an in-process provider speaking the same JSON as the real
// ones. Every accepted request is recorded.
type SMSProvider struct {
	URL string

	mu       sync.Mutex
	received []map[string]any
}

func StartSMSProvider(t *testing.T) *SMSProvider {
	t.Helper()
	p := &SMSProvider{}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health":
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"status":"healthy"}`)
		case "/api/v1/sms/send":
			var req map[string]any
			if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				return
			}
			p.mu.Lock()
			p.received = append(p.received, req)
			p.mu.Unlock()
			body, _ := json.Marshal(map[string]any{
				"message_id":  req["message_id"],
				"status":      "DELIVERED",
				"operator_id": "test-operator",
			})
			ctx.SetContentType("application/json")
			ctx.SetBody(body)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	p.URL = "http://" + ln.Addr().String()
	return p
}

func (p *SMSProvider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

func (p *SMSProvider) Received() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, len(p.received))
	copy(out, p.received)
	return out
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
