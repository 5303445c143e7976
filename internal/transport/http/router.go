package http

import (
	"net/http"
	"slices"
	"time"

	httpmw "github.com/cwrk-planet/realtime-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Handler *Handler
	Auth    httpmw.Authenticator
	WS      http.HandlerFunc

	AllowedOrigins []string
	MaxBodyBytes   int64 // лимит тела REST-запроса; 0: 1 MiB, как у ws.readLimit
}

const defaultMaxBodyBytes = 1 << 20

func NewRouter(d Deps) http.Handler {
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.RequestLogger)

	// без явного списка origin'ов: любой origin, но без credentials,
	// иначе cors отражает Origin вызывающего вместе с Allow-Credentials
	origins, credentials := d.AllowedOrigins, true
	if len(origins) == 0 || slices.Contains(origins, "*") {
		origins, credentials = []string{"*"}, false
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}))

	// WS endpoint: аутентификация внутри, до upgrade
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(d.Auth))
		pr.Use(middlewareChi.Timeout(30 * time.Second))
		pr.Use(middlewareChi.RequestSize(maxBody))

		pr.Route("/api/channels/{id}", func(ch chi.Router) {
			ch.Get("/messages", d.Handler.GetHistory)
			ch.Post("/messages", d.Handler.PostMessage)
			ch.Get("/call", d.Handler.GetCall)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
