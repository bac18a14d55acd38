// Package api exposes the schedule management surface. The delivery
// pipeline itself never mutates schedules; every write goes through
// these handlers.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/report-scheduler/pkg/mail"
	"github.com/yourusername/report-scheduler/pkg/model"
	"github.com/yourusername/report-scheduler/pkg/store"
)

// Enqueuer accepts one delivery job; used by the run-now endpoint.
type Enqueuer interface {
	Enqueue(kind model.TargetKind, scheduleID int64, recipients, slackChannel string, eta time.Time) error
}

// Handler handles HTTP API requests
type Handler struct {
	store          *store.Store
	queue          Enqueuer
	allowedDomains []string
	mux            *http.ServeMux
}

// NewHandler creates a new API handler
func NewHandler(st *store.Store, queue Enqueuer, allowedDomains []string) *Handler {
	h := &Handler{
		store:          st,
		queue:          queue,
		allowedDomains: allowedDomains,
		mux:            http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// registerRoutes registers all HTTP routes
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("/api/health", h.handleHealth)
	h.mux.HandleFunc("/api/schedules", h.handleSchedules)
	h.mux.HandleFunc("/api/schedules/", h.handleSchedule)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// handleSchedules handles GET /api/schedules and POST /api/schedules
func (h *Handler) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		schedules, err := h.store.ListSchedules()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"schedules": schedules})

	case http.MethodPost:
		var schedule model.Schedule
		if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.validateSchedule(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.store.CreateSchedule(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		log.Printf("[API] Created schedule %d (%s, cron '%s')", schedule.ID, schedule.TargetKind, schedule.CronExpr)
		respondJSON(w, schedule)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSchedule handles /api/schedules/{id} and /api/schedules/{id}/run
func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid schedule id", http.StatusBadRequest)
		return
	}

	if len(parts) == 2 && parts[1] == "run" {
		h.handleRunNow(w, r, id)
		return
	}
	if len(parts) != 1 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		schedule, err := h.store.GetSchedule(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if schedule == nil {
			http.Error(w, "schedule not found", http.StatusNotFound)
			return
		}
		respondJSON(w, schedule)

	case http.MethodPut:
		var schedule model.Schedule
		if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		schedule.ID = id

		if err := h.validateSchedule(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.store.UpdateSchedule(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, schedule)

	case http.MethodDelete:
		if err := h.store.DeleteSchedule(id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunNow enqueues an immediate delivery for a schedule,
// bypassing its cron expression.
func (h *Handler) handleRunNow(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	schedule, err := h.store.GetSchedule(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if schedule == nil {
		http.Error(w, "schedule not found", http.StatusNotFound)
		return
	}

	if err := h.queue.Enqueue(schedule.TargetKind, schedule.ID, "", "", time.Now()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Manual run enqueued for schedule %d", id)
	respondJSON(w, map[string]string{"status": "enqueued"})
}

func (h *Handler) validateSchedule(schedule *model.Schedule) error {
	if err := model.ValidateSchedule(schedule); err != nil {
		return err
	}
	return model.ValidateRecipientDomains(mail.ParseAddressList(schedule.Recipients), h.allowedDomains)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}
