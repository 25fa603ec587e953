package xhttp

import (
	"os"
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/valyala/fasthttp"
)

type ServerOption struct {
	Handler RequestHandler

	// idle keep-alive connections are closed after this long
	IdleTimeout time.Duration

	MaxIdleWorkerDuration time.Duration
	TCPKeepalivePeriod    time.Duration
	MaxRequestBodySize    int
	ReadBufferSize        int
	WriteBufferSize       int
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	Concurrency           int
	MaxConnsPerIP         int
	Name                  string
	Logger                logger.Logger
}

var DefaultServerOption = ServerOption{
	Handler: func(ctx *RequestCtx) {
		ctx.Error(StatusText(StatusNotFound), StatusNotFound)
	},
	IdleTimeout:           10 * time.Second,
	MaxIdleWorkerDuration: time.Minute,
	TCPKeepalivePeriod:    2 * time.Hour,
	MaxRequestBodySize:    2 * 1024 * 1024,
	ReadBufferSize:        8 * 1024,
	WriteBufferSize:       8 * 1024,
	ReadTimeout:           5 * time.Second,
	WriteTimeout:          5 * time.Second,
	Concurrency:           10_000,
	MaxConnsPerIP:         1_000,
}

type Server = fasthttp.Server

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	l := options.Logger
	if l == nil {
		l = logger.GetLogger()
	}
	return &fasthttp.Server{
		Handler:               options.Handler,
		Name:                  options.Name,
		Concurrency:           options.Concurrency,
		ReadBufferSize:        options.ReadBufferSize,
		WriteBufferSize:       options.WriteBufferSize,
		ReadTimeout:           options.ReadTimeout,
		WriteTimeout:          options.WriteTimeout,
		IdleTimeout:           options.IdleTimeout,
		MaxConnsPerIP:         options.MaxConnsPerIP,
		MaxIdleWorkerDuration: options.MaxIdleWorkerDuration,
		TCPKeepalivePeriod:    options.TCPKeepalivePeriod,
		MaxRequestBodySize:    options.MaxRequestBodySize,
		TCPKeepalive:          true,
		NoDefaultServerHeader: true,
		NoDefaultContentType:  true,
		CloseOnShutdown:       true,
		ErrorHandler: func(ctx *RequestCtx, err error) {
			logger.Warn("[xhttp] request error", "error", err)
		},
		Logger: l,
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: CreateDefaultRouter(),
		option: options,
	}
}

func CreateServer() *Engine {
	return NewServer(DefaultServerOption)
}

func (e *Engine) ListenAndServe(addr string) error {
	if err := e.DoRouting(); err != nil {
		return err
	}
	logger.Info("[xhttp] server is listening", "addr", addr)
	return e.Server.ListenAndServe(addr)
}

// DoRouting installs the router and wraps it with the registered middlewares.
// The first middleware passed to Use is the outermost one.
func (e *Engine) DoRouting() error {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			logger.Debug("[xhttp] route", "method", method, "path", r)
		}
	}
	e.Server.Handler = e.Router.Handler
	chain := slices.Clone(e.middle)
	slices.Reverse(chain)
	for i, m := range chain {
		e.Server.Handler = m(e.Server.Handler)
		logger.Debug("[xhttp] middleware registered", "index", i+1, "name", runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
	return nil
}

func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

func (e *Engine) Shutdown() {
	logger.Info("[xhttp] server is shutting down", "pid", os.Getpid())
	if err := e.Server.Shutdown(); err != nil {
		logger.Warn("[xhttp] error while shutting down", "error", err)
	}
}
