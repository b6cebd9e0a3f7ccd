package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"driver-agent/internal/apperr"
	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
)

// DriverHandler serves the driver-side controls: position and notifications.
type DriverHandler struct {
	driver        driverState
	notifications notificationReader
	validate      *validator.Validate
	logger        logx.Logger
}

// NewDriverHandler creates a DriverHandler.
func NewDriverHandler(logger logx.Logger, driver driverState, notifications notificationReader) *DriverHandler {
	return &DriverHandler{
		driver:        driver,
		notifications: notifications,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
	}
}

// UpdateLocation handles PUT /location. Moving the driver forces a snapshot
// fetch around the new position.
func (h *DriverHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req updateLocationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "location out of range")
		return
	}

	added, err := h.driver.SetLocation(r.Context(), domain.Location{Lat: req.Lat, Lng: req.Lng})
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, updateLocationResponse{
			Lat:   req.Lat,
			Lng:   req.Lng,
			Added: added,
		})
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "location out of range")
	case errors.Is(err, apperr.ErrUnavailable):
		writeError(h.logger, w, r, http.StatusServiceUnavailable, "delivery service unavailable")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Location handles GET /location.
func (h *DriverHandler) Location(w http.ResponseWriter, r *http.Request) {
	loc := h.driver.Location()
	writeJSON(h.logger, w, r, http.StatusOK, updateLocationResponse{Lat: loc.Lat, Lng: loc.Lng})
}

const defaultNotificationLimit = 20

// Notifications handles GET /notifications?limit=N, newest first.
func (h *DriverHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	writeJSON(h.logger, w, r, http.StatusOK, notificationsResponse{
		Notifications: h.notifications.Recent(limit),
	})
}
