/*
handlers.go - HTTP API handlers for the lesson scheduling engine

PURPOSE:
  Exposes the scheduling and billing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Schedules:
    POST   /api/schedules                  Create schedule (+ initial sessions)
    GET    /api/schedules?teacher_id=      List schedules for a teacher
    GET    /api/schedules/{id}             Get schedule
    DELETE /api/schedules/{id}?cascade=    Delete schedule
    POST   /api/schedules/{id}/sessions    Generate sessions over a range
    GET    /api/schedules/{id}/sessions    List a schedule's sessions

  Sessions:
    GET    /api/sessions?date=             List sessions on a date
    GET    /api/sessions/{id}              Get session
    POST   /api/sessions/{id}/transition   Move lifecycle status
    POST   /api/sessions/{id}/attendance   Mark a student present (bills)

  Attendance:
    POST   /api/attendance/{id}/status     Correct status (reverses billing)
    GET    /api/attendance/recent?limit=   Recent activity feed

  Students:
    CRUD plus:
    POST   /api/students/{id}/scan         QR check-in
    POST   /api/students/{id}/subscribe    Credit a plan
    GET    /api/students/{id}/subscriptions Purchase history
    GET    /api/students/{id}/performance  Feedback history
    POST   /api/students/{id}/performance  Record feedback

  Teachers, Groups, Plans: roster/catalog CRUD

  Admin:
    POST   /api/admin/generate?weeks=      Batch horizon generation
    POST   /api/admin/activate             Flip today's sessions live

ERROR HANDLING:
  Domain errors map to HTTP statuses via the schedule error helpers:
  - 400: validation and business-rule rejections
  - 404: missing entities
  - 409: conflicts (overlap, duplicate attendance, schedule in use)
  - 500: everything else

SECURITY NOTE:
  No authentication middleware. All endpoints are public; front with a
  gateway in any real deployment.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/classtrack/lesson-engine/billing"
	"github.com/classtrack/lesson-engine/schedule"
	"github.com/classtrack/lesson-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Clock     schedule.Clock
	Registry  *schedule.Registry
	Generator *schedule.Generator
	Lifecycle *schedule.Lifecycle
	Ledger    *billing.Ledger
}

// NewHandler wires the engine components around one store and clock.
func NewHandler(store *sqlite.Store, clock schedule.Clock) *Handler {
	return &Handler{
		Store:     store,
		Clock:     clock,
		Registry:  schedule.NewRegistry(store, clock),
		Generator: schedule.NewGenerator(store, clock),
		Lifecycle: schedule.NewLifecycle(store, clock),
		Ledger:    billing.NewLedger(store, clock),
	}
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// CreateSchedule creates a recurring schedule and its initial sessions.
// POST /api/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	start, err := schedule.ParseTimeOfDay(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_time (use HH:MM)", err)
		return
	}
	end, err := schedule.ParseTimeOfDay(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_time (use HH:MM)", err)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}

	target, err := parseTarget(req.GroupID, req.StudentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Exactly one of group_id and student_id is required", err)
		return
	}

	recurring := true
	if req.Recurring != nil {
		recurring = *req.Recurring
	}

	sched, err := h.Registry.CreateSchedule(r.Context(), schedule.CreateScheduleInput{
		TeacherID: schedule.TeacherID(req.TeacherID),
		Target:    target,
		Days:      req.Days,
		StartTime: start,
		EndTime:   end,
		Rate:      rate,
		Recurring: recurring,
	})
	if err != nil {
		writeDomainError(w, "Failed to create schedule", err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleDTO(*sched))
}

// GetSchedule returns a single schedule.
// GET /api/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))

	sched, err := h.Registry.GetSchedule(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, toScheduleDTO(*sched))
}

// ListSchedules returns a teacher's schedules.
// GET /api/schedules?teacher_id=
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	teacherID := r.URL.Query().Get("teacher_id")
	if teacherID == "" {
		writeError(w, http.StatusBadRequest, "teacher_id query parameter is required", nil)
		return
	}

	schedules, err := h.Registry.ListByTeacher(r.Context(), schedule.TeacherID(teacherID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		dtos[i] = toScheduleDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteSchedule removes a schedule, cascading to future sessions when
// asked.
// DELETE /api/schedules/{id}?cascade=true
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))
	cascade := r.URL.Query().Get("cascade") == "true"

	if err := h.Registry.DeleteSchedule(r.Context(), id, cascade); err != nil {
		writeDomainError(w, "Failed to delete schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

// GenerateSessions expands a schedule over an explicit date range.
// POST /api/schedules/{id}/sessions
func (h *Handler) GenerateSessions(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))

	var req GenerateSessionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	sessions, err := h.Generator.Generate(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, "Failed to generate sessions", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionDTOs(sessions))
}

// ListScheduleSessions returns every session of one schedule.
// GET /api/schedules/{id}/sessions
func (h *Handler) ListScheduleSessions(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))

	sessions, err := h.Store.ListSessionsBySchedule(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns sessions on a given date (defaults to today).
// GET /api/sessions?date=YYYY-MM-DD
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	date := schedule.TodayOf(h.Clock)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		date = parsed
	}

	sessions, err := h.Store.ListSessionsOnDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

// GetSession returns a single session.
// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := schedule.SessionID(chi.URLParam(r, "id"))

	sess, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session", err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*sess))
}

// TransitionSession moves a session through its lifecycle.
// POST /api/sessions/{id}/transition
func (h *Handler) TransitionSession(w http.ResponseWriter, r *http.Request) {
	id := schedule.SessionID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	sess, err := h.Lifecycle.Transition(r.Context(), id, schedule.SessionStatus(req.Status))
	if err != nil {
		writeDomainError(w, "Failed to transition session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*sess))
}

// MarkAttendance records a student as present and debits the balance.
// POST /api/sessions/{id}/attendance
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID := schedule.SessionID(chi.URLParam(r, "id"))

	var req MarkAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	log, err := h.Ledger.MarkAttendance(r.Context(), schedule.StudentID(req.StudentID), sessionID)
	if err != nil {
		writeDomainError(w, "Failed to mark attendance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceDTO(*log))
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// SetAttendanceStatus corrects an attendance record, applying billing
// reversal rules for the absent/present edges.
// POST /api/attendance/{id}/status
func (h *Handler) SetAttendanceStatus(w http.ResponseWriter, r *http.Request) {
	id := schedule.AttendanceID(chi.URLParam(r, "id"))

	var req SetAttendanceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	log, err := h.Ledger.SetAttendanceStatus(r.Context(), id, schedule.AttendanceStatus(req.Status))
	if err != nil {
		writeDomainError(w, "Failed to update attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(*log))
}

// ListRecentAttendance returns the latest attendance activity.
// GET /api/attendance/recent?limit=
func (h *Handler) ListRecentAttendance(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	logs, err := h.Store.ListRecentAttendance(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(logs))
	for i, a := range logs {
		dtos[i] = toAttendanceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
// GET /api/students
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudent returns a single student with balance state.
// GET /api/students/{id}
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := schedule.StudentID(chi.URLParam(r, "id"))

	student, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*student))
}

// CreateStudent creates or updates a student's roster fields. A new
// student gets their ID as the QR scan token.
// POST /api/students
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	student := schedule.Student{
		ID:        schedule.StudentID(id),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Level:     req.Level,
		QRCode:    id,
		CreatedAt: h.Clock.Now(),
	}
	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}

	saved, err := h.Store.GetStudent(r.Context(), student.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load saved student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(*saved))
}

// DeleteStudent removes a student from the roster.
// DELETE /api/students/{id}
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := schedule.StudentID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteStudent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete student", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

// ScanQR checks a student in from a QR scan, billing attendance
// against today's session (creating a walk-in session if none).
// POST /api/students/{id}/scan
func (h *Handler) ScanQR(w http.ResponseWriter, r *http.Request) {
	id := schedule.StudentID(chi.URLParam(r, "id"))

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	log, err := h.Ledger.ScanQR(r.Context(), id, req.Payload)
	if err != nil {
		writeDomainError(w, "Scan rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceDTO(*log))
}

// Subscribe credits a plan's lessons and price onto the student.
// POST /api/students/{id}/subscribe
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id := schedule.StudentID(chi.URLParam(r, "id"))

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	student, err := h.Ledger.ApplySubscription(r.Context(), id, schedule.PlanID(req.PlanID))
	if err != nil {
		writeDomainError(w, "Failed to apply subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*student))
}

// ListSubscriptions returns a student's plan purchase history.
// GET /api/students/{id}/subscriptions
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	id := schedule.StudentID(chi.URLParam(r, "id"))

	subs, err := h.Store.ListSubscriptionsForStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions", err)
		return
	}

	dtos := make([]SubscriptionDTO, len(subs))
	for i, s := range subs {
		dtos[i] = toSubscriptionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPerformance appends a scored feedback row for a session.
// POST /api/students/{id}/performance
func (h *Handler) RecordPerformance(w http.ResponseWriter, r *http.Request) {
	studentID := schedule.StudentID(chi.URLParam(r, "id"))

	var req RecordPerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	sess, err := h.Store.GetSession(r.Context(), schedule.SessionID(req.SessionID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up session", err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}

	perf := schedule.Performance{
		ID:        uuid.NewString(),
		StudentID: studentID,
		SessionID: sess.ID,
		Date:      sess.Date,
		Comments:  req.Comments,
		CreatedAt: h.Clock.Now(),
	}
	for _, score := range []struct {
		raw string
		dst **decimal.Decimal
	}{
		{deref(req.VocabularyScore), &perf.VocabularyScore},
		{deref(req.GrammarScore), &perf.GrammarScore},
		{deref(req.SpeakingScore), &perf.SpeakingScore},
		{deref(req.ListeningScore), &perf.ListeningScore},
	} {
		if score.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(score.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid score %q", score.raw), err)
			return
		}
		*score.dst = &d
	}

	if err := h.Store.SavePerformance(r.Context(), perf); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record performance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPerformanceDTO(perf))
}

// ListPerformance returns a student's feedback history.
// GET /api/students/{id}/performance
func (h *Handler) ListPerformance(w http.ResponseWriter, r *http.Request) {
	id := schedule.StudentID(chi.URLParam(r, "id"))

	rows, err := h.Store.ListPerformanceForStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list performance", err)
		return
	}

	dtos := make([]PerformanceDTO, len(rows))
	for i, p := range rows {
		dtos[i] = toPerformanceDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

// ListTeachers returns all teachers.
// GET /api/teachers
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teachers", err)
		return
	}

	dtos := make([]TeacherDTO, len(teachers))
	for i, t := range teachers {
		dtos[i] = toTeacherDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTeacher returns a single teacher.
// GET /api/teachers/{id}
func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
	id := schedule.TeacherID(chi.URLParam(r, "id"))

	teacher, err := h.Store.GetTeacher(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get teacher", err)
		return
	}
	if teacher == nil {
		writeError(w, http.StatusNotFound, "Teacher not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTeacherDTO(*teacher))
}

// CreateTeacher creates or updates a teacher.
// POST /api/teachers
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	teacher := schedule.Teacher{
		ID:              schedule.TeacherID(id),
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Specializations: req.Specializations,
		CreatedAt:       h.Clock.Now(),
	}
	if err := h.Store.SaveTeacher(r.Context(), teacher); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save teacher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeacherDTO(teacher))
}

// DeleteTeacher removes a teacher.
// DELETE /api/teachers/{id}
func (h *Handler) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id := schedule.TeacherID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteTeacher(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all groups.
// GET /api/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroup returns a single group.
// GET /api/groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := schedule.GroupID(chi.URLParam(r, "id"))

	group, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get group", err)
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*group))
}

// CreateGroup creates or updates a group.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := schedule.GroupActive
	if req.Status != "" {
		status = schedule.GroupStatus(req.Status)
	}

	group := schedule.Group{
		ID:          schedule.GroupID(id),
		Name:        req.Name,
		Description: req.Description,
		Language:    req.Language,
		Level:       req.Level,
		TeacherID:   schedule.TeacherID(req.TeacherID),
		MaxCapacity: req.MaxCapacity,
		Status:      status,
		CreatedAt:   h.Clock.Now(),
	}
	if err := h.Store.SaveGroup(r.Context(), group); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(group))
}

// AddGroupMember enrolls a student in a group.
// POST /api/groups/{id}/members
func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID := schedule.GroupID(chi.URLParam(r, "id"))

	var req AddGroupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	group, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get group", err)
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	// Enrolling is idempotent, but a full group only admits students
	// who are already in it.
	if group.MaxCapacity > 0 {
		members, err := h.Store.ListGroupMembers(r.Context(), groupID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list members", err)
			return
		}
		enrolled := false
		for _, m := range members {
			if m.StudentID == schedule.StudentID(req.StudentID) {
				enrolled = true
				break
			}
		}
		if !enrolled && len(members) >= group.MaxCapacity {
			writeError(w, http.StatusConflict, "Group is at capacity", nil)
			return
		}
	}

	if err := h.Store.AddGroupMember(r.Context(), groupID, schedule.StudentID(req.StudentID), h.Clock.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add member", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"group_id":   string(groupID),
		"student_id": req.StudentID,
	})
}

// RemoveGroupMember removes a student from a group.
// DELETE /api/groups/{id}/members/{studentID}
func (h *Handler) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID := schedule.GroupID(chi.URLParam(r, "id"))
	studentID := schedule.StudentID(chi.URLParam(r, "studentID"))

	if err := h.Store.RemoveGroupMember(r.Context(), groupID, studentID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove member", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id":   string(groupID),
		"student_id": string(studentID),
	})
}

// ListGroupMembers returns a group's roster.
// GET /api/groups/{id}/members
func (h *Handler) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID := schedule.GroupID(chi.URLParam(r, "id"))

	members, err := h.Store.ListGroupMembers(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	type memberDTO struct {
		GroupID   string `json:"group_id"`
		StudentID string `json:"student_id"`
		JoinedAt  string `json:"joined_at"`
	}
	dtos := make([]memberDTO, len(members))
	for i, m := range members {
		dtos[i] = memberDTO{
			GroupID:   string(m.GroupID),
			StudentID: string(m.StudentID),
			JoinedAt:  m.JoinedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns the subscription plan catalog.
// GET /api/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListPlans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}

	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan creates or updates a subscription plan.
// POST /api/plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	plan := schedule.SubscriptionPlan{
		ID:      schedule.PlanID(id),
		Name:    req.Name,
		Lessons: req.Lessons,
		Price:   price,
	}
	if err := h.Store.SavePlan(r.Context(), plan); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(plan))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerGeneration runs a batch generation/activation pass on demand,
// the same work the background scheduler does on its ticker.
// POST /api/admin/generate?weeks=
func (h *Handler) TriggerGeneration(w http.ResponseWriter, r *http.Request) {
	weeks := schedule.InitialHorizonWeeks
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid weeks", err)
			return
		}
		weeks = parsed
	}

	created, err := h.Generator.GenerateForHorizon(r.Context(), weeks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate sessions", err)
		return
	}
	activated, err := h.Lifecycle.ActivateDue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to activate sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, GenerationResultDTO{Created: created, Activated: activated})
}

// TriggerActivation flips today's SCHEDULED sessions to IN_PROGRESS.
// POST /api/admin/activate
func (h *Handler) TriggerActivation(w http.ResponseWriter, r *http.Request) {
	activated, err := h.Lifecycle.ActivateDue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to activate sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerationResultDTO{Activated: activated})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseTarget(groupID, studentID string) (schedule.Target, error) {
	var t schedule.Target
	switch {
	case groupID != "" && studentID == "":
		t = schedule.GroupTarget(schedule.GroupID(groupID))
	case studentID != "" && groupID == "":
		t = schedule.StudentTarget(schedule.StudentID(studentID))
	default:
		return t, schedule.ErrInvalidTarget
	}
	return t, nil
}

func toPerformanceDTO(p schedule.Performance) PerformanceDTO {
	return PerformanceDTO{
		ID:              p.ID,
		StudentID:       string(p.StudentID),
		SessionID:       string(p.SessionID),
		Date:            p.Date.Format("2006-01-02"),
		VocabularyScore: decimalPtrString(p.VocabularyScore),
		GrammarScore:    decimalPtrString(p.GrammarScore),
		SpeakingScore:   decimalPtrString(p.SpeakingScore),
		ListeningScore:  decimalPtrString(p.ListeningScore),
		Comments:        p.Comments,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

func decimalPtrString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case schedule.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case schedule.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
