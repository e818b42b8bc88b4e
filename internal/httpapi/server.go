// Package httpapi serves the relay's two actor routes, plus static files
// from StaticDir when it is set. Each actor route doubles as both an actor
// document (GET) and that actor's inbox (POST): one for the completion
// persona, one per trends-<instance> persona.
package httpapi

import (
	"context"
	"crypto/rsa"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/sender"
	"github.com/hollowsky/courier-relay/internal/signer"
	"github.com/hollowsky/courier-relay/internal/store"
)

const activityJSONType = `application/activity+json`

// Server is the relay's HTTP surface.
type Server struct {
	Hostname     string
	Store        *store.Store
	Signer       *signer.Signer
	PublicKeyPEM string
	HTTPClient   *http.Client
	Sender       *sender.Sender
	StaticDir    string

	router *chi.Mux
}

// New builds a Server and its router.
func New(s *Server) *Server {
	s.router = s.buildRouter()
	return s
}

// Start binds addr, then serves on it until ctx is cancelled. onReady, if
// non-nil, is called once the listener is bound but before Serve begins —
// the point at which the process is ready to receive traffic.
func (s *Server) Start(ctx context.Context, addr string, onReady func()) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		panic(err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	if onReady != nil {
		onReady()
	}

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		panic(err)
	}
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/completion", s.handleGetActor(relay.NewCompletionActor(s.Hostname)))
	r.Post("/completion", s.handlePostInbox(relay.NewCompletionActor(s.Hostname)))

	r.Get("/trends/{instance}", s.handleGetTrendsActor)
	r.Post("/trends/{instance}", s.handlePostTrendsInbox)

	if s.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.StaticDir))
		r.Handle("/*", fs)
	}

	return r
}

func (s *Server) handleGetTrendsActor(w http.ResponseWriter, r *http.Request) {
	instance := strings.ToLower(chi.URLParam(r, "instance"))
	s.handleGetActor(relay.NewTrendsActor(s.Hostname, instance))(w, r)
}

func (s *Server) handlePostTrendsInbox(w http.ResponseWriter, r *http.Request) {
	instance := strings.ToLower(chi.URLParam(r, "instance"))
	s.handlePostInbox(relay.NewTrendsActor(s.Hostname, instance))(w, r)
}

// keyResolver fetches the public key for keyId by requesting the actor
// document at its base uri, signed as target (the local persona being
// followed), and caches the resolved RemoteActor for the caller to reuse.
type keyResolver struct {
	ctx    context.Context
	srv    *Server
	target relay.LocalActor
	found  relay.RemoteActor
}

func (k *keyResolver) resolve(keyID string) (*rsa.PublicKey, error) {
	actorURI := signer.ActorURIFromKeyID(keyID)
	remoteActor, pem, err := fetchActorDoc(k.ctx, k.srv, k.target, actorURI)
	if err != nil {
		return nil, err
	}
	k.found = remoteActor
	return signer.ParsePublicKeyPEM(pem)
}
