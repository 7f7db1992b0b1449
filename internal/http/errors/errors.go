package errors

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"gitea.jw6.us/james/calsync/internal/http/render"
)

// InternalError logs err with the request id and answers with {"error": message}.
func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	LogError(r, message, err)
	render.Error(w, http.StatusInternalServerError, message)
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	LogWarn(r, "bad request", err)
	render.Error(w, http.StatusBadRequest, clientMessage)
}

func NotFoundError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	LogWarn(r, "not found", err)
	render.Error(w, http.StatusNotFound, clientMessage)
}

func LogError(r *http.Request, message string, err error) {
	requestID := middleware.GetReqID(r.Context())

	if requestID != "" {
		log.Printf("[ERROR] RequestID=%s: %s: %v", requestID, message, err)
	} else {
		log.Printf("[ERROR] %s: %v", message, err)
	}
}

func LogWarn(r *http.Request, message string, err error) {
	requestID := middleware.GetReqID(r.Context())

	if requestID != "" {
		log.Printf("[WARN] RequestID=%s: %s: %v", requestID, message, err)
	} else {
		log.Printf("[WARN] %s: %v", message, err)
	}
}

func LogInfo(r *http.Request, message string) {
	requestID := middleware.GetReqID(r.Context())

	if requestID != "" {
		log.Printf("[INFO] RequestID=%s: %s", requestID, message)
	} else {
		log.Printf("[INFO] %s", message)
	}
}
