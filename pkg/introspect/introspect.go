// Package introspect serves a read-only HTTP surface over the
// engine's published sys state and process metrics: an external
// collaborator of pkg/tree, reading only through tree.Tree.Get, never
// mutating engine state. Built on github.com/valyala/fasthttp per the
// domain stack, with an optional bearer-token guard grounded on
// authn's use of github.com/golang-jwt/jwt/v4 for token verification.
package introspect

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/tree"
	"github.com/reactree/reactree/pkg/value"
	"github.com/reactree/reactree/pkg/xlog"
)

// Server hosts the introspection endpoints. Construct with New and run
// with ListenAndServe; Shutdown stops it.
type Server struct {
	addr   string
	token  string
	t      *tree.Tree
	server *fasthttp.Server
}

// New builds a Server reading from t. addr is the bind address
// ("host:port"); token, if non-empty, is the HMAC secret that the JWT
// bearer token on every request must be signed with.
func New(addr, token string, t *tree.Tree) *Server {
	s := &Server{addr: addr, token: token, t: t}
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())

	s.server = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if !s.authorized(ctx) {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/sys":
				s.handleSys(ctx)
			default:
				s.handleSubpath(ctx)
			}
		},
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	xlog.Infof("introspect: listening on %s", s.addr)
	return s.server.ListenAndServe(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

func (s *Server) authorized(ctx *fasthttp.RequestCtx) bool {
	if s.token == "" {
		return true
	}
	auth := string(ctx.Request.Header.Peek("Authorization"))
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return false
	}
	tokenStr := auth[len(prefix):]
	parsed, err := jwt.Parse(tokenStr, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return []byte(s.token), nil
	})
	return err == nil && parsed.Valid
}

func (s *Server) handleSys(ctx *fasthttp.RequestCtx) {
	v := s.t.Get(path.Path{path.Key("sys")}, tree.Resolved)
	writeJSON(ctx, v)
}

func (s *Server) handleSubpath(ctx *fasthttp.RequestCtx) {
	p := path.Parse(string(ctx.Path()), nil)
	v := s.t.Get(p, tree.Resolved)
	writeJSON(ctx, v)
}

func writeJSON(ctx *fasthttp.RequestCtx, v *value.Value) {
	ctx.SetContentType("application/json")
	data, err := jsoniter.Marshal(toInterface(v))
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(data)
}

// toInterface converts a Value tree into plain Go values for JSON
// encoding; the inverse of value.Sanitize.
func toInterface(v *value.Value) interface{} {
	if v == nil || v == value.Absent {
		return nil
	}
	switch v.Kind() {
	case value.KindBool:
		return v.Bool()
	case value.KindInt:
		return v.Int()
	case value.KindFloat:
		return v.Float()
	case value.KindString:
		return v.Str()
	case value.KindList:
		items := v.Items()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toInterface(item)
		}
		return out
	case value.KindMap:
		keys := v.Keys()
		out := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			out[k] = toInterface(v.Field(k))
		}
		return out
	default:
		return nil
	}
}
