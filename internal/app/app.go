package app

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/molpadia/molparelay/internal/logging"
)

type appHandler func(http.ResponseWriter, *http.Request) error

func (fn appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		e := toAppError(err)
		log := logging.FromContext(r.Context(), nil)
		if e.Code >= http.StatusInternalServerError {
			log.Error("request failed", "code", e.Code, "err", err)
		} else {
			log.Info("request rejected", "code", e.Code, "err", err)
		}
		replyJSON(w, Envelope{Status: e.Code, Message: messageFailure, Data: e.Message}, e.Code)
	}
}

// Register API endpoints to the router.
func SetupRoutes(r *mux.Router, c *Controller) {
	r.Methods("POST").Path("/upload").Handler(appHandler(c.uploadVideo))
	r.Methods("POST").Path("/molparelay/v1/videos/upload").Handler(appHandler(c.uploadVideo))
	r.Methods("GET").Path("/molparelay/v1/uploads/{id}").Handler(appHandler(c.getUpload))
	r.Methods("GET").Path("/healthz").Handler(appHandler(c.health))
}

// NewRouter returns the routes of the service wrapped in request ID and
// request logging middleware.
func NewRouter(c *Controller, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID(logger), requestLogger)
	SetupRoutes(r, c)
	return r
}
