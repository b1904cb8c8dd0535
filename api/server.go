/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/schedules/*    Recurring schedule management + generation
  /api/sessions/*     Session lifecycle + attendance
  /api/attendance/*   Attendance corrections and activity feed
  /api/students/*     Roster, QR check-in, subscriptions, performance
  /api/teachers/*     Roster
  /api/groups/*       Roster and membership
  /api/plans/*        Subscription plan catalog
  /api/admin/*        Batch generation/activation triggers
  /api/health         Liveness probe

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Delete("/{id}", h.DeleteSchedule)
			r.Get("/{id}/sessions", h.ListScheduleSessions)
			r.Post("/{id}/sessions", h.GenerateSessions)
		})

		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/transition", h.TransitionSession)
			r.Post("/{id}/attendance", h.MarkAttendance)
		})

		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/recent", h.ListRecentAttendance)
			r.Post("/{id}/status", h.SetAttendanceStatus)
		})

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Delete("/{id}", h.DeleteStudent)
			r.Post("/{id}/scan", h.ScanQR)
			r.Post("/{id}/subscribe", h.Subscribe)
			r.Get("/{id}/subscriptions", h.ListSubscriptions)
			r.Get("/{id}/performance", h.ListPerformance)
			r.Post("/{id}/performance", h.RecordPerformance)
		})

		// Teacher routes
		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)
			r.Get("/{id}", h.GetTeacher)
			r.Delete("/{id}", h.DeleteTeacher)
		})

		// Group routes
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
			r.Get("/{id}/members", h.ListGroupMembers)
			r.Post("/{id}/members", h.AddGroupMember)
			r.Delete("/{id}/members/{studentID}", h.RemoveGroupMember)
		})

		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/generate", h.TriggerGeneration)
			r.Post("/activate", h.TriggerActivation)
		})

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
