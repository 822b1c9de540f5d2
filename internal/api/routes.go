package api

import (
	"net/http"

	"chatrelay/internal/middleware"
)

// NewRouter wires the handlers onto a ServeMux. staticDir, when set, is served
// at the root for the browser front end.
func NewRouter(h *Handler, staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", h.ChatHandler)
	mux.HandleFunc("/history", h.HistoryHandler)
	mux.HandleFunc("/verify", h.VerifyHandler)
	mux.HandleFunc("/health", h.HealthHandler)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	return middleware.Chain(mux,
		middleware.Recover,
		middleware.RequestLogger,
		middleware.CORSMiddleware,
	)
}
