/*
handlers_test.go - HTTP-level tests for the API surface

Exercises the router end to end against an in-memory database:
roster CRUD, schedule creation with conflict handling, attendance
billing, QR check-in, and subscriptions.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/lesson-engine/api"
	"github.com/classtrack/lesson-engine/schedule"
	"github.com/classtrack/lesson-engine/store/sqlite"
)

// Wednesday 2025-03-05, 10:00 UTC.
var testNow = time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return api.NewRouter(api.NewHandler(store, schedule.FixedClock{Time: testNow}))
}

// do runs one request through the router and decodes the JSON response
// into out (when out is non-nil).
func do(t *testing.T, router http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out), "body: %s", rec.Body.String())
	}
	return rec
}

func createTeacher(t *testing.T, router http.Handler) string {
	t.Helper()
	var teacher struct {
		ID string `json:"id"`
	}
	rec := do(t, router, http.MethodPost, "/api/teachers", map[string]any{"name": "Dana"}, &teacher)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return teacher.ID
}

func createStudent(t *testing.T, router http.Handler, name string) (id, qrCode string) {
	t.Helper()
	var student struct {
		ID     string `json:"id"`
		QRCode string `json:"qr_code"`
	}
	rec := do(t, router, http.MethodPost, "/api/students", map[string]any{"name": name}, &student)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return student.ID, student.QRCode
}

// subscribe funds the student with a fresh 4-lesson, 100.00 plan.
func subscribe(t *testing.T, router http.Handler, studentID string) {
	t.Helper()
	var plan struct {
		ID string `json:"id"`
	}
	rec := do(t, router, http.MethodPost, "/api/plans",
		map[string]any{"name": "Starter 4", "lessons": 4, "price": "100.00"}, &plan)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/students/"+studentID+"/subscribe",
		map[string]any{"plan_id": plan.ID}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

type studentBody struct {
	ID                  string `json:"id"`
	QRCode              string `json:"qr_code"`
	LessonsRemaining    int    `json:"lessons_remaining"`
	SubscriptionBalance string `json:"subscription_balance"`
}

func getStudent(t *testing.T, router http.Handler, id string) studentBody {
	t.Helper()
	var s studentBody
	rec := do(t, router, http.MethodGet, "/api/students/"+id, nil, &s)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return s
}

type sessionBody struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

// createWednesdaySchedule posts a weekly Wednesday schedule for the
// student and returns its ID. With the clock fixed on a Wednesday the
// initial horizon includes a session for today.
func createWednesdaySchedule(t *testing.T, router http.Handler, teacherID, studentID string) string {
	t.Helper()
	var sched struct {
		ID string `json:"id"`
	}
	rec := do(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"teacher_id": teacherID,
		"student_id": studentID,
		"days":       []int{2},
		"start_time": "10:00",
		"end_time":   "11:00",
		"rate":       "30.00",
	}, &sched)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return sched.ID
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestCreateSchedule_GeneratesInitialSessions(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")

	schedID := createWednesdaySchedule(t, router, teacherID, studentID)

	var sessions []sessionBody
	rec := do(t, router, http.MethodGet, "/api/schedules/"+schedID+"/sessions", nil, &sessions)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sessions, 4, "one Wednesday per week over the initial horizon")
	assert.Equal(t, "2025-03-05", sessions[0].Date)
	assert.Equal(t, "IN_PROGRESS", sessions[0].Status, "today's session starts active")
	assert.Equal(t, "SCHEDULED", sessions[1].Status)
}

func TestCreateSchedule_Validation(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")

	// Missing days
	rec := do(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"teacher_id": teacherID,
		"student_id": studentID,
		"start_time": "10:00",
		"end_time":   "11:00",
		"rate":       "30.00",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Both targets at once
	rec = do(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"teacher_id": teacherID,
		"student_id": studentID,
		"group_id":   "group-1",
		"days":       []int{2},
		"start_time": "10:00",
		"end_time":   "11:00",
		"rate":       "30.00",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// End before start
	rec = do(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"teacher_id": teacherID,
		"student_id": studentID,
		"days":       []int{2},
		"start_time": "11:00",
		"end_time":   "10:00",
		"rate":       "30.00",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSchedule_Conflict(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	aID, _ := createStudent(t, router, "Mina")
	bID, _ := createStudent(t, router, "Jo")

	createWednesdaySchedule(t, router, teacherID, aID)

	// Overlapping window for the same teacher on the same day.
	rec := do(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"teacher_id": teacherID,
		"student_id": bID,
		"days":       []int{2},
		"start_time": "10:30",
		"end_time":   "11:30",
		"rate":       "30.00",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestDeleteSchedule_CascadeQuery(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")
	schedID := createWednesdaySchedule(t, router, teacherID, studentID)

	// Refused while future sessions exist.
	rec := do(t, router, http.MethodDelete, "/api/schedules/"+schedID, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/schedules/"+schedID+"?cascade=true", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/schedules/"+schedID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SESSIONS AND ATTENDANCE
// =============================================================================

func todaySession(t *testing.T, router http.Handler) sessionBody {
	t.Helper()
	var sessions []sessionBody
	rec := do(t, router, http.MethodGet, "/api/sessions?date=2025-03-05", nil, &sessions)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, sessions)
	return sessions[0]
}

func TestMarkAttendance_BillsThroughTheAPI(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")
	subscribe(t, router, studentID)
	createWednesdaySchedule(t, router, teacherID, studentID)

	sess := todaySession(t, router)

	rec := do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/attendance",
		map[string]any{"student_id": studentID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	after := getStudent(t, router, studentID)
	assert.Equal(t, 3, after.LessonsRemaining)
	assert.Equal(t, "75", after.SubscriptionBalance)

	// Second mark for the same pair conflicts and does not re-bill.
	rec = do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/attendance",
		map[string]any{"student_id": studentID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 3, getStudent(t, router, studentID).LessonsRemaining)
}

func TestMarkAttendance_UnfundedStudent(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Unfunded")
	createWednesdaySchedule(t, router, teacherID, studentID)

	sess := todaySession(t, router)

	rec := do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/attendance",
		map[string]any{"student_id": studentID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestTransitionSession(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")
	createWednesdaySchedule(t, router, teacherID, studentID)

	sess := todaySession(t, router)
	require.Equal(t, "IN_PROGRESS", sess.Status)

	var updated sessionBody
	rec := do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/transition",
		map[string]any{"status": "COMPLETED"}, &updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "COMPLETED", updated.Status)

	// Terminal state rejects further moves.
	rec = do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/transition",
		map[string]any{"status": "CANCELLED"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown status never reaches the engine.
	rec = do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/transition",
		map[string]any{"status": "DONE"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceCorrection_RefundsThroughTheAPI(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")
	subscribe(t, router, studentID)
	createWednesdaySchedule(t, router, teacherID, studentID)

	sess := todaySession(t, router)
	var log struct {
		ID string `json:"id"`
	}
	rec := do(t, router, http.MethodPost, "/api/sessions/"+sess.ID+"/attendance",
		map[string]any{"student_id": studentID}, &log)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/attendance/"+log.ID+"/status",
		map[string]any{"status": "absent"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after := getStudent(t, router, studentID)
	assert.Equal(t, 4, after.LessonsRemaining)
	assert.Equal(t, "100", after.SubscriptionBalance)
}

// =============================================================================
// QR CHECK-IN AND SUBSCRIPTIONS
// =============================================================================

func TestScanQR_Endpoint(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, qrCode := createStudent(t, router, "Mina")
	subscribe(t, router, studentID)
	createWednesdaySchedule(t, router, teacherID, studentID)

	rec := do(t, router, http.MethodPost, "/api/students/"+studentID+"/scan",
		map[string]any{"payload": "not-their-code"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/students/"+studentID+"/scan",
		map[string]any{"payload": qrCode}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 3, getStudent(t, router, studentID).LessonsRemaining)
}

func TestSubscribe_Endpoint(t *testing.T) {
	router := newTestRouter(t)
	studentID, _ := createStudent(t, router, "Mina")

	before := getStudent(t, router, studentID)
	assert.Zero(t, before.LessonsRemaining)
	assert.Equal(t, studentID, before.QRCode, "scan token defaults to the student ID")

	subscribe(t, router, studentID)
	after := getStudent(t, router, studentID)
	assert.Equal(t, 4, after.LessonsRemaining)
	assert.Equal(t, "100", after.SubscriptionBalance)

	rec := do(t, router, http.MethodPost, "/api/students/"+studentID+"/subscribe",
		map[string]any{"plan_id": "no-such-plan"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var subs []struct {
		PlanID  string `json:"plan_id"`
		Lessons int    `json:"lessons"`
	}
	rec = do(t, router, http.MethodGet, "/api/students/"+studentID+"/subscriptions", nil, &subs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, subs, 1)
	assert.Equal(t, 4, subs[0].Lessons)
}

func TestAddGroupMember_CapacityAndIdempotency(t *testing.T) {
	router := newTestRouter(t)
	aID, _ := createStudent(t, router, "Mina")
	bID, _ := createStudent(t, router, "Jo")

	var group struct {
		ID string `json:"id"`
	}
	rec := do(t, router, http.MethodPost, "/api/groups",
		map[string]any{"name": "Beginners", "max_capacity": 1}, &group)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/groups/"+group.ID+"/members",
		map[string]any{"student_id": aID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Re-enrolling the same student is allowed.
	rec = do(t, router, http.MethodPost, "/api/groups/"+group.ID+"/members",
		map[string]any{"student_id": aID}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// A second student does not fit.
	rec = do(t, router, http.MethodPost, "/api/groups/"+group.ID+"/members",
		map[string]any{"student_id": bID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// ADMIN TRIGGERS
// =============================================================================

func TestTriggerGeneration(t *testing.T) {
	router := newTestRouter(t)
	teacherID := createTeacher(t, router)
	studentID, _ := createStudent(t, router, "Mina")
	schedID := createWednesdaySchedule(t, router, teacherID, studentID)

	var result struct {
		Created   int `json:"created"`
		Activated int `json:"activated"`
	}
	rec := do(t, router, http.MethodPost, fmt.Sprintf("/api/admin/generate?weeks=%d", 6), nil, &result)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, result.Created, "two extra Wednesdays beyond the initial horizon")

	var sessions []sessionBody
	rec = do(t, router, http.MethodGet, "/api/schedules/"+schedID+"/sessions", nil, &sessions)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sessions, 6)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
