package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/prefs"
	"example.com/socialfeed/internal/social"
	"example.com/socialfeed/internal/store"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	store       store.StoreInterface
	kafkaWriter appkafka.KafkaWriter
	social      *social.Mutator
	prefs       *prefs.Store

	followBias float64
	adInterval int
	feedLimit  int
	sessionTTL time.Duration
}

var logg = logger.New()

// routes assembles the chi router with JWT-protected endpoints.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Public endpoints (no session required)
	r.Post("/signup", s.signupHandler)
	r.Post("/login", s.loginHandler)

	// Session-protected endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.store))
		r.Get("/logout", s.logoutHandler)
		r.Get("/me", s.meHandler)
		r.Get("/getPosts", s.getPostsHandler)
		r.Get("/feed", s.feedHandler)
		r.Post("/home", s.createPostHandler)
		r.Post("/follow", s.followHandler)
		r.Post("/unfollow", s.unfollowHandler)
		r.Post("/block", s.blockHandler)
		r.Post("/unblock", s.unblockHandler)
		r.Post("/settings/password", s.changePasswordHandler)
		r.Get("/settings/premium", s.getPremiumHandler)
		r.Post("/settings/premium", s.setPremiumHandler)
	})

	return r
}

// Run starts the HTTPS server with graceful shutdown.
func Run(ctx context.Context, st store.StoreInterface, writer appkafka.KafkaWriter, cfg *config.Config) {
	s := &Server{
		store:       st,
		kafkaWriter: writer,
		social:      social.New(st),
		prefs:       prefs.Load(cfg.PrefsPath),
		followBias:  cfg.FeedFollowBias,
		adInterval:  cfg.FeedAdInterval,
		feedLimit:   cfg.FeedLimit,
		sessionTTL:  cfg.SessionTTL,
	}

	// Process-lifetime subscription: toggles arriving through
	// /settings/premium are observed and logged when they happen,
	// not only on the next feed render.
	go func() {
		changes := s.prefs.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-changes:
				logg.Info("server", "Premium mode set to "+strconv.FormatBool(v))
			}
		}
	}()

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		logg.Info("server", "Starting HTTPS server on "+cfg.ServerAddr)
		// TLS: cert.pem and key.pem should be valid certificates in specified paths
		if err := srv.ListenAndServeTLS("/certs/cert.pem", "/certs/key.pem"); err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
