package handlers

import (
	"net/http"

	"github.com/mpetrenko/postqueue/internal/handlers/middleware"
	"github.com/mpetrenko/postqueue/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	auth *AuthHandler,
	posts *PostHandler,
	secretKey string,
	logger logger.Logger,
) http.Handler {
	serviceAuth := middleware.ServiceAuthMiddleware(secretKey)

	mux := http.NewServeMux()

	// Connect flow: browser facing
	mux.HandleFunc("GET /auth/{platform}", auth.begin)
	mux.HandleFunc("GET /auth/{platform}/callback", auth.callback)
	mux.HandleFunc("POST /auth/{platform}/callback", auth.callback)
	mux.HandleFunc("DELETE /auth/{platform}", auth.disconnect)

	// Service to service
	mux.Handle("POST /internal/token/refresh", serviceAuth(http.HandlerFunc(auth.refresh)))

	// Scheduling surface
	mux.HandleFunc("POST /api/posts", posts.create)
	mux.HandleFunc("GET /api/posts", posts.list)
	mux.HandleFunc("DELETE /api/posts/{id}", posts.cancel)

	return chain(mux,
		middleware.LoggerMiddleware(logger),
	)
}
