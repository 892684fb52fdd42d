package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/engine"
)

const maxBodyBytes = 1 << 20

// Service is the region store as seen by the API.
type Service interface {
	Submit(ctx context.Context, sub domain.Submission) (engine.Result, error)
	RegisterRegion(ctx context.Context, name string) (string, bool, error)
	DeleteRegion(ctx context.Context, name string) error
	Regions() []string
	Dates(region string) ([]string, error)
	Record(region, date string) (domain.RegionRecord, error)
	Series(region string) (domain.Series, error)
	Dashboard() []domain.Series
}

// API serves the /api/v1 routes.
type API struct {
	svc    Service
	logger *slog.Logger
}

// NewAPI creates the region API handlers.
func NewAPI(svc Service, logger *slog.Logger) *API {
	return &API{svc: svc, logger: logger}
}

// Register mounts the API routes on r.
func (a *API) Register(r chi.Router) {
	r.Get("/regions", a.handleListRegions)
	r.Post("/regions", a.handleCreateRegion)
	r.Get("/dashboard", a.handleDashboard)
	r.Route("/regions/{region}", func(r chi.Router) {
		r.Delete("/", a.handleDeleteRegion)
		r.Get("/dates", a.handleDates)
		r.Get("/series", a.handleSeries)
		r.Put("/records/{date}", a.handlePutRecord)
		r.Get("/records/{date}", a.handleGetRecord)
	})
}

type createRegionRequest struct {
	Name string `json:"name"`
}

type recordRequest struct {
	MeanAge        float64              `json:"mean_age"`
	Population     float64              `json:"population"`
	LifeExpectancy float64              `json:"life_expectancy"`
	Domains        []domain.DomainInput `json:"domains"`
}

func (a *API) handleListRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"regions": a.svc.Regions()})
}

func (a *API) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var req createRegionRequest
	if !a.decode(w, r, &req) {
		return
	}
	name, created, err := a.svc.RegisterRegion(r.Context(), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"name": name, "created": created})
}

func (a *API) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteRegion(r.Context(), pathParam(r, "region")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := a.svc.Dates(pathParam(r, "region"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"dates": dates})
}

func (a *API) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.svc.Submit(r.Context(), domain.Submission{
		Region:         pathParam(r, "region"),
		Date:           pathParam(r, "date"),
		MeanAge:        req.MeanAge,
		Population:     req.Population,
		LifeExpectancy: req.LifeExpectancy,
		Domains:        req.Domains,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Record(pathParam(r, "region"), pathParam(r, "date"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleSeries(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.Series(pathParam(r, "region"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	series := a.svc.Dashboard()
	if series == nil {
		series = []domain.Series{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Series{"regions": series})
}

// decode reads a JSON body into v, writing a 400 and returning false on
// failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.logger.WarnContext(r.Context(), "invalid request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrRegionNotFound), errors.Is(err, domain.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		a.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// pathParam returns a decoded URL parameter. Region names may contain spaces.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
