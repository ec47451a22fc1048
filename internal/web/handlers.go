package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dsporty/prodtrack/internal/domain"
	"github.com/dsporty/prodtrack/internal/reconcile"
	"github.com/dsporty/prodtrack/internal/report"
)

// recordView is the JSON shape of one record; field names mirror the remote
// table and the offline cache.
type recordView struct {
	ID           string  `json:"id"`
	Exporter     string  `json:"exporter"`
	Product      string  `json:"product"`
	Quantity     int     `json:"quantity"`
	MaterialID   string  `json:"materialId"`
	ImageDataURL string  `json:"imageDataUrl,omitempty"`
	Timestamp    string  `json:"timestamp"`
	Verified     bool    `json:"verified"`
	Value        float64 `json:"value"`
}

func toView(records []domain.ProductionRecord) []recordView {
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView{
			ID:           rec.ID,
			Exporter:     rec.Exporter,
			Product:      rec.Product,
			Quantity:     rec.Quantity,
			MaterialID:   rec.MaterialID,
			ImageDataURL: rec.ImageDataURL,
			Timestamp:    rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			Verified:     rec.Verified,
			Value:        domain.Value(rec.Product, rec.Quantity),
		})
	}
	return views
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"records": toView(s.rec.Records()),
		"status":  s.rec.Status(),
	})
}

type submitRequest struct {
	Exporter string `json:"exporter"`
	Items    []struct {
		Product    string `json:"product"`
		Quantity   int    `json:"quantity"`
		MaterialID string `json:"materialId"`
	} `json:"items"`
	ImageDataURL string `json:"imageDataUrl"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]domain.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.BatchItem{
			Product:    item.Product,
			Quantity:   item.Quantity,
			MaterialID: item.MaterialID,
		})
	}

	notice, err := s.rec.Submit(r.Context(), req.Exporter, items, req.ImageDataURL)
	if err != nil {
		if reconcile.IsValidationError(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"notice":  notice.Message(),
		"records": toView(s.rec.Records()),
	})
}

func (s *Server) handleToggleVerify(w http.ResponseWriter, r *http.Request) {
	err := s.rec.ToggleVerify(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, reconcile.ErrOffline):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reconcile.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Error("verify failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "verify failed")
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{"records": toView(s.rec.Records())})
	}
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("delete failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": toView(s.rec.Records())})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	timeRange := report.TimeRange(r.URL.Query().Get("range"))
	switch timeRange {
	case report.RangeToday, report.RangeWeek, report.RangeMonth, report.RangeYear:
	case "":
		timeRange = report.RangeToday
	default:
		s.writeError(w, http.StatusBadRequest, "invalid time range")
		return
	}

	filtered := report.Filter(s.rec.Records(), timeRange, r.URL.Query().Get("q"), time.Now())
	s.writeJSON(w, http.StatusOK, report.Aggregate(filtered))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rec.Status())
}

type wipeRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	var req wipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.rec.Wipe(r.Context(), req.Password)
	switch {
	case errors.Is(err, reconcile.ErrOffline):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reconcile.ErrBadCredential):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case err != nil:
		s.logger.Error("wipe failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "wipe failed")
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"result": "database wiped"})
	}
}
