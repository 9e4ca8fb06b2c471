package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/jobmesh/identity-middleware/pkg/app/errors"
	apphttp "github.com/jobmesh/identity-middleware/pkg/app/http"
	"github.com/jobmesh/identity-middleware/pkg/verification"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service        Service
	validate       *validator.Validate
	maxUploadBytes int64
	logger         *zap.Logger
}

// RegisterRoutes registers HTTP endpoints for the verification service on the given chi router
func RegisterRoutes(r chi.Router, service Service, maxUploadBytes int64, logger *zap.Logger) {
	h := &HTTP{
		service:        service,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}

	r.Route("/verification", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.start))
		r.Post("/{sessionID}/assertion", apphttp.HandleError(h.assertion))
		r.Post("/{sessionID}/face", apphttp.HandleError(h.face))
	})
}

func (h *HTTP) start(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req verification.StartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "missing or invalid fields")
	}

	resp, err := h.service.Start(r.Context(), &req)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusCreated, resp)
	return nil
}

func (h *HTTP) assertion(w http.ResponseWriter, r *http.Request) error {
	sessionID := chi.URLParam(r, "sessionID")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	resp, err := h.service.Assertion(r.Context(), sessionID, body)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) face(w http.ResponseWriter, r *http.Request) error {
	sessionID := chi.URLParam(r, "sessionID")

	frame, err := h.readFrame(r)
	if err != nil {
		return err
	}

	outcome, err := h.service.Face(r.Context(), sessionID, frame)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusOK, outcome)
	return nil
}

// readFrame reads the uploaded face frame from a multipart form field
// named "frame", falling back to the raw body for octet-stream uploads.
func (h *HTTP) readFrame(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err == nil {
		file, header, err := r.FormFile("frame")
		if err != nil {
			return nil, apperrors.BadRequestError(err, "missing frame field")
		}
		defer file.Close()

		if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
			return nil, apperrors.BadRequestError(nil, "frame must be an image")
		}

		frame, err := io.ReadAll(file)
		if err != nil {
			return nil, apperrors.BadRequestError(err, "failed to read frame")
		}
		return frame, nil
	}

	frame, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "frame exceeds upload limit")
	}
	if len(frame) == 0 {
		return nil, apperrors.BadRequestError(nil, "empty frame")
	}
	return frame, nil
}
