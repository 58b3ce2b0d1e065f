package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/jusunglee/bikeshare-go/internal/store"
	"github.com/jusunglee/bikeshare-go/internal/viewport"
	"github.com/jusunglee/bikeshare-go/pkg/bikes"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "handlers")

const (
	defaultLocationLimit = 5
	defaultBusiestLimit  = 10
)

// Handler handles HTTP requests
type Handler struct {
	client bikes.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(client bikes.Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/markers", h.handleMarkers).Methods("GET")
	r.HandleFunc("/markers/busiest", h.handleBusiest).Methods("GET")
	r.HandleFunc("/by-location", h.handleByLocation).Methods("GET")
	r.HandleFunc("/by-id/{ids}", h.handleByID).Methods("GET")
	r.HandleFunc("/filter", h.handleGetFilter).Methods("GET")
	r.HandleFunc("/filter", h.handleSetFilter).Methods("PUT")
	r.HandleFunc("/viewport", h.handleGetViewport).Methods("GET")
	r.HandleFunc("/viewport", h.handleSetViewport).Methods("PUT")
	r.HandleFunc("/viewport/pan", h.handlePan).Methods("POST")
	r.HandleFunc("/stream", h.handleStream).Methods("GET")
}

// Response wraps API responses
type Response struct {
	Data    interface{}         `json:"data"`
	Filter  *models.FilterState `json:"filter,omitempty"`
	Updated string              `json:"updated,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// FilterRequest is the body of PUT /filter. AnyTime wins over Minute.
type FilterRequest struct {
	Minute  *int `json:"minute"`
	AnyTime bool `json:"any_time"`
}

// PanRequest is the body of POST /viewport/pan
type PanRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"title":  "bikeshare-go",
		"readme": "Visit https://github.com/jusunglee/bikeshare-go for more info",
	}
	h.writeJSON(w, response)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.client.Status()
	if !status.Loaded {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(status)
		return
	}
	h.writeJSON(w, status)
}

func (h *Handler) handleMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := h.client.GetMarkers()
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeMarkersResponse(w, markers)
}

func (h *Handler) handleBusiest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultBusiestLimit)
	if err != nil {
		h.writeError(w, "Invalid limit parameter", http.StatusBadRequest)
		return
	}

	markers, err := h.client.GetBusiest(limit)
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeMarkersResponse(w, markers)
}

func (h *Handler) handleByLocation(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")

	if latStr == "" || lonStr == "" {
		h.writeError(w, "Missing lat/lon parameter", http.StatusBadRequest)
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lat parameter", http.StatusBadRequest)
		return
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lon parameter", http.StatusBadRequest)
		return
	}

	limit, err := intParam(r, "limit", defaultLocationLimit)
	if err != nil || limit < 0 {
		h.writeError(w, "Invalid limit parameter", http.StatusBadRequest)
		return
	}

	markers, err := h.client.GetMarkersByLocation(lat, lon, limit)
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeMarkersResponse(w, markers)
}

func (h *Handler) handleByID(w http.ResponseWriter, r *http.Request) {
	idsStr := mux.Vars(r)["ids"]
	ids := strings.Split(idsStr, ",")

	markers, err := h.client.GetMarkersByIDs(ids)
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeMarkersResponse(w, markers)
}

func (h *Handler) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	status, err := h.client.GetFilter()
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeJSON(w, Response{
		Data:    status,
		Updated: h.updated(),
	})
}

func (h *Handler) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	filter := models.AnyTime
	if !req.AnyTime {
		if req.Minute == nil {
			h.writeError(w, "Missing minute or any_time", http.StatusBadRequest)
			return
		}
		filter = models.TimeFilter(*req.Minute)
	}

	update, err := h.client.SetFilter(filter)
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeJSON(w, update.ConvertToResponse())
}

func (h *Handler) handleGetViewport(w http.ResponseWriter, r *http.Request) {
	state, err := h.client.GetViewport()
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeJSON(w, Response{Data: state})
}

func (h *Handler) handleSetViewport(w http.ResponseWriter, r *http.Request) {
	var req models.ViewportState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	state, err := h.client.SetViewport(req)
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeJSON(w, Response{Data: state, Updated: h.updated()})
}

func (h *Handler) handlePan(w http.ResponseWriter, r *http.Request) {
	var req PanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	state, err := h.client.PanViewport(req.DX, req.DY)
	if err != nil {
		h.writeClientError(w, err)
		return
	}

	h.writeJSON(w, Response{Data: state, Updated: h.updated()})
}

func (h *Handler) writeMarkersResponse(w http.ResponseWriter, markers []models.Marker) {
	data := make([]models.MarkerResponse, len(markers))
	for i := range markers {
		data[i] = markers[i].ConvertToResponse()
	}

	response := Response{
		Data:    data,
		Updated: h.updated(),
	}
	if status, err := h.client.GetFilter(); err == nil {
		response.Filter = &status.FilterState
	}

	h.writeJSON(w, response)
}

func (h *Handler) updated() string {
	if last := h.client.GetLastUpdate(); !last.IsZero() {
		return last.Format(time.RFC3339)
	}
	return ""
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.writeError(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// writeClientError maps client errors to status codes
func (h *Handler) writeClientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bikes.ErrNotLoaded):
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, models.ErrInvalidFilter), errors.Is(err, viewport.ErrInvalid):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	default:
		log.Errorf("request failed: %v", err)
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func intParam(r *http.Request, name string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
