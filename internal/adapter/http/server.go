package http

import (
	"net/http"

	"github.com/convertd/convertd/internal/adapter/http/middleware"
	"github.com/convertd/convertd/internal/adapter/http/ratelimit"
	"github.com/convertd/convertd/internal/port"
	"github.com/convertd/convertd/internal/service"
)

type Server struct {
	mux        *http.ServeMux
	handlers   *Handlers
	sseHandler *SSEHandler
	limiter    *ratelimit.ClientLimiter
}

func NewServer(svc JobService, eventBus *service.EventBus, archive port.JobArchive, queues QueueInfo, maxSizeMB int, limiter *ratelimit.ClientLimiter) *Server {
	mux := http.NewServeMux()
	handlers := NewHandlers(svc, archive, queues, maxSizeMB)
	sseHandler := NewSSEHandler(eventBus, svc)

	s := &Server{
		mux:        mux,
		handlers:   handlers,
		sseHandler: sseHandler,
		limiter:    limiter,
	}

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	// Submission endpoints sit behind the rate limiter; status polling and
	// downloads do not, so a polling client cannot starve itself.
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		if s.limiter == nil {
			return h
		}
		return s.limiter.Middleware(h).ServeHTTP
	}

	s.mux.HandleFunc("POST /convert", limited(s.handlers.ConvertSync()))
	s.mux.HandleFunc("POST /convert-async", limited(s.handlers.ConvertAsync()))
	s.mux.HandleFunc("POST /api/batch-convert", limited(s.handlers.BatchConvert()))

	s.mux.HandleFunc("GET /job/{id}", s.handlers.JobStatus())
	s.mux.HandleFunc("GET /api/progress/{id}", s.handlers.BatchProgress())
	s.mux.HandleFunc("GET /download/{id}", s.handlers.Download())
	s.mux.HandleFunc("POST /api/cancel/{id}", s.handlers.Cancel())
	s.mux.HandleFunc("GET /events/{id}", s.sseHandler.Events())

	s.mux.HandleFunc("GET /healthz", s.handlers.Health())
	s.mux.HandleFunc("GET /api/stats", s.handlers.Stats())
	s.mux.HandleFunc("GET /api/jobs/recent", s.handlers.RecentJobs())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(middleware.CORS(s.mux)).ServeHTTP(w, r)
}
