package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
	"github.com/awmpietro/golang-typestate-order-check/internal/transport/checkdto"
)

const maxBodyBytes = 4 << 20

type Handler struct {
	svc app.CheckService
}

func NewHandler(svc app.CheckService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in checkdto.CheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json", "details": err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, checkdto.ErrorBody(err))
		return
	}

	report, err := h.svc.Check(r.Context(), in.ToApp())
	if err != nil {
		writeJSON(w, checkdto.StatusFor(err), checkdto.ErrorBody(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
