package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"driver-agent/internal/apperr"
	"driver-agent/internal/logx"
	"driver-agent/internal/service/accept"
)

// BroadcastHandler serves the delivery broadcast views of the local dashboard.
type BroadcastHandler struct {
	state  broadcastReader
	flow   acceptFlow
	driver driverState
	status statusGateway
	clock  clock
	logger logx.Logger
}

// NewBroadcastHandler creates a BroadcastHandler.
func NewBroadcastHandler(
	logger logx.Logger,
	state broadcastReader,
	flow acceptFlow,
	driver driverState,
	status statusGateway,
	clk clock,
) *BroadcastHandler {
	return &BroadcastHandler{
		state:  state,
		flow:   flow,
		driver: driver,
		status: status,
		clock:  clk,
		logger: logger,
	}
}

// List handles GET /broadcasts. With ?refresh=true a snapshot fetch is forced
// before the list is rendered; a failed refresh degrades to the local state.
func (h *BroadcastHandler) List(w http.ResponseWriter, r *http.Request) {
	added := 0
	if r.URL.Query().Get("refresh") == "true" {
		n, err := h.driver.Refresh(r.Context())
		if err != nil {
			h.logger.Warn("refresh before list failed",
				logx.String("req_id", reqID(r.Context())),
				logx.Any("err", err),
			)
		} else {
			added = n
		}
	}

	now := h.clock.Now()
	live := h.state.List()
	out := make([]broadcastDTO, 0, len(live))
	for _, b := range live {
		out = append(out, broadcastToDTO(b, now))
	}

	writeJSON(h.logger, w, r, http.StatusOK, listBroadcastsResponse{
		Count:      len(out),
		Added:      added,
		Broadcasts: out,
	})
}

// Accept handles POST /broadcasts/{deliveryId}/accept.
func (h *BroadcastHandler) Accept(w http.ResponseWriter, r *http.Request) {
	deliveryID := strings.TrimSpace(chi.URLParam(r, "deliveryId"))

	err := h.flow.Accept(r.Context(), deliveryID)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, acceptResponse{DeliveryID: deliveryID, Accepted: true})
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid delivery id")
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(h.logger, w, r, http.StatusUnauthorized, "session expired")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "broadcast not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "delivery no longer available")
	case errors.Is(err, accept.ErrInFlight):
		writeError(h.logger, w, r, http.StatusConflict, "accept already in progress")
	case errors.Is(err, apperr.ErrUnavailable):
		writeError(h.logger, w, r, http.StatusServiceUnavailable, "delivery service unavailable")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Status handles GET /broadcasts/{deliveryId}/status: a pass-through to the
// upstream status endpoint, annotated with whether this agent claimed the id.
func (h *BroadcastHandler) Status(w http.ResponseWriter, r *http.Request) {
	deliveryID := strings.TrimSpace(chi.URLParam(r, "deliveryId"))
	if deliveryID == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid delivery id")
		return
	}

	st, err := h.status.BroadcastStatus(r.Context(), deliveryID)
	switch {
	case err == nil && st != nil:
		writeJSON(h.logger, w, r, http.StatusOK, statusResponse{
			DeliveryID:    deliveryID,
			Status:        st.Status,
			IsExpired:     st.IsExpired,
			AssignedTo:    st.AssignedTo,
			CanBeAccepted: st.CanBeAccepted,
			AcceptedByMe:  h.state.Accepted(deliveryID),
		})
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "delivery not found")
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(h.logger, w, r, http.StatusUnauthorized, "session expired")
	case errors.Is(err, apperr.ErrUnavailable):
		writeError(h.logger, w, r, http.StatusServiceUnavailable, "delivery service unavailable")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

