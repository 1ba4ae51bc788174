// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊與中介層。所有端點掛在 /api/v1 下，
// 同時保留根路徑方便本地開發。

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router 建立並回傳整個 HTTP 處理鏈。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Mount("/api/v1", s.routes())
	r.Mount("/", s.routes())
	return r
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/leaderboard", s.leaderboard)
	r.Get("/bank", s.bankState)

	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/", s.account)
		r.Post("/{action}", s.action)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/give", s.adminGive)
		r.Post("/take", s.adminTake)
	})
	return r
}

// requestLogger 以 slog 記錄每個請求。
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
