// Package store provides an in-memory schedule.Store implementation
// for tests and local development. It enforces the same uniqueness
// contract as the production SQLite store: one session per
// (schedule, date), one attendance log per (student, session).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classtrack/lesson-engine/schedule"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	schedules  map[schedule.ScheduleID]schedule.Schedule
	sessions   map[schedule.SessionID]schedule.Session
	attendance map[schedule.AttendanceID]schedule.AttendanceLog
	students   map[schedule.StudentID]schedule.Student
	plans      map[schedule.PlanID]schedule.SubscriptionPlan
	purchases  map[string]schedule.StudentSubscription

	// Membership is seed data here; the engine only reads it to answer
	// "which sessions cover this student today".
	groupMembers map[schedule.GroupID][]schedule.StudentID

	// Unique indexes mirroring the SQLite constraints.
	sessionByScheduleDate map[scheduleDateKey]schedule.SessionID
	attendanceByPair      map[attendancePairKey]schedule.AttendanceID
}

type scheduleDateKey struct {
	ScheduleID schedule.ScheduleID
	Date       string
}

type attendancePairKey struct {
	StudentID schedule.StudentID
	SessionID schedule.SessionID
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func NewMemory() *Memory {
	return &Memory{
		schedules:             make(map[schedule.ScheduleID]schedule.Schedule),
		sessions:              make(map[schedule.SessionID]schedule.Session),
		attendance:            make(map[schedule.AttendanceID]schedule.AttendanceLog),
		students:              make(map[schedule.StudentID]schedule.Student),
		plans:                 make(map[schedule.PlanID]schedule.SubscriptionPlan),
		purchases:             make(map[string]schedule.StudentSubscription),
		groupMembers:          make(map[schedule.GroupID][]schedule.StudentID),
		sessionByScheduleDate: make(map[scheduleDateKey]schedule.SessionID),
		attendanceByPair:      make(map[attendancePairKey]schedule.AttendanceID),
	}
}

// =============================================================================
// SEEDING - Test/dev setup helpers, not part of schedule.Store
// =============================================================================

func (m *Memory) PutStudent(s schedule.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) PutPlan(p schedule.SubscriptionPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

func (m *Memory) AddGroupMember(groupID schedule.GroupID, studentID schedule.StudentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupMembers[groupID] = append(m.groupMembers[groupID], studentID)
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) SaveSchedule(_ context.Context, s schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveScheduleLocked(s)
}

func (m *Memory) saveScheduleLocked(s schedule.Schedule) error {
	m.schedules[s.ID] = s
	return nil
}

func (m *Memory) GetSchedule(_ context.Context, id schedule.ScheduleID) (*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getScheduleLocked(id)
}

func (m *Memory) getScheduleLocked(id schedule.ScheduleID) (*schedule.Schedule, error) {
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ListSchedulesByTeacher(_ context.Context, teacherID schedule.TeacherID) ([]schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSchedulesByTeacherLocked(teacherID)
}

func (m *Memory) listSchedulesByTeacherLocked(teacherID schedule.TeacherID) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	for _, s := range m.schedules {
		if s.TeacherID == teacherID {
			out = append(out, s)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (m *Memory) ListRecurringSchedules(_ context.Context) ([]schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRecurringSchedulesLocked()
}

func (m *Memory) listRecurringSchedulesLocked() ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	for _, s := range m.schedules {
		if s.Recurring {
			out = append(out, s)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (m *Memory) DeleteSchedule(_ context.Context, id schedule.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteScheduleLocked(id)
}

func (m *Memory) deleteScheduleLocked(id schedule.ScheduleID) error {
	delete(m.schedules, id)
	// Surviving sessions become degenerate: drop the reference and the
	// uniqueness index entries, matching ON DELETE SET NULL.
	for sid, sess := range m.sessions {
		if sess.ScheduleID == id {
			delete(m.sessionByScheduleDate, scheduleDateKey{ScheduleID: id, Date: dateKey(sess.Date)})
			sess.ScheduleID = ""
			m.sessions[sid] = sess
		}
	}
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) CreateSession(_ context.Context, s schedule.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSessionLocked(s)
}

func (m *Memory) createSessionLocked(s schedule.Session) error {
	if s.ScheduleID != "" {
		k := scheduleDateKey{ScheduleID: s.ScheduleID, Date: dateKey(s.Date)}
		if _, exists := m.sessionByScheduleDate[k]; exists {
			return schedule.ErrDuplicateSession
		}
		m.sessionByScheduleDate[k] = s.ID
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id schedule.SessionID) (*schedule.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSessionLocked(id)
}

func (m *Memory) getSessionLocked(id schedule.SessionID) (*schedule.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) GetSessionByScheduleDate(_ context.Context, scheduleID schedule.ScheduleID, date time.Time) (*schedule.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSessionByScheduleDateLocked(scheduleID, date)
}

func (m *Memory) getSessionByScheduleDateLocked(scheduleID schedule.ScheduleID, date time.Time) (*schedule.Session, error) {
	id, ok := m.sessionByScheduleDate[scheduleDateKey{ScheduleID: scheduleID, Date: dateKey(date)}]
	if !ok {
		return nil, nil
	}
	return m.getSessionLocked(id)
}

func (m *Memory) ListSessionsBySchedule(_ context.Context, scheduleID schedule.ScheduleID) ([]schedule.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSessionsByScheduleLocked(scheduleID)
}

func (m *Memory) listSessionsByScheduleLocked(scheduleID schedule.ScheduleID) ([]schedule.Session, error) {
	var out []schedule.Session
	for _, s := range m.sessions {
		if s.ScheduleID == scheduleID {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) ListSessionsOnDate(_ context.Context, date time.Time) ([]schedule.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSessionsOnDateLocked(date)
}

func (m *Memory) listSessionsOnDateLocked(date time.Time) ([]schedule.Session, error) {
	var out []schedule.Session
	for _, s := range m.sessions {
		if s.OnDate(date) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) ListSessionsForStudentOnDate(_ context.Context, studentID schedule.StudentID, date time.Time) ([]schedule.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSessionsForStudentOnDateLocked(studentID, date)
}

func (m *Memory) listSessionsForStudentOnDateLocked(studentID schedule.StudentID, date time.Time) ([]schedule.Session, error) {
	var out []schedule.Session
	for _, s := range m.sessions {
		if !s.OnDate(date) {
			continue
		}
		if s.Target.Kind == schedule.TargetStudent && s.Target.StudentID == studentID {
			out = append(out, s)
			continue
		}
		if s.Target.Kind == schedule.TargetGroup && m.isMemberLocked(s.Target.GroupID, studentID) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) isMemberLocked(groupID schedule.GroupID, studentID schedule.StudentID) bool {
	for _, id := range m.groupMembers[groupID] {
		if id == studentID {
			return true
		}
	}
	return false
}

func (m *Memory) UpdateSessionStatus(_ context.Context, id schedule.SessionID, status schedule.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSessionStatusLocked(id, status)
}

func (m *Memory) updateSessionStatusLocked(id schedule.SessionID, status schedule.SessionStatus) error {
	s, ok := m.sessions[id]
	if !ok {
		return schedule.ErrSessionNotFound
	}
	s.Status = status
	m.sessions[id] = s
	return nil
}

func (m *Memory) CountSessionsAfter(_ context.Context, scheduleID schedule.ScheduleID, after time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countSessionsAfterLocked(scheduleID, after)
}

func (m *Memory) countSessionsAfterLocked(scheduleID schedule.ScheduleID, after time.Time) (int, error) {
	n := 0
	for _, s := range m.sessions {
		if s.ScheduleID == scheduleID && s.Date.After(after) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteSessionsAfter(_ context.Context, scheduleID schedule.ScheduleID, after time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSessionsAfterLocked(scheduleID, after)
}

func (m *Memory) deleteSessionsAfterLocked(scheduleID schedule.ScheduleID, after time.Time) error {
	for id, s := range m.sessions {
		if s.ScheduleID == scheduleID && s.Date.After(after) {
			delete(m.sessions, id)
			delete(m.sessionByScheduleDate, scheduleDateKey{ScheduleID: scheduleID, Date: dateKey(s.Date)})
		}
	}
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) CreateAttendanceLog(_ context.Context, a schedule.AttendanceLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAttendanceLogLocked(a)
}

func (m *Memory) createAttendanceLogLocked(a schedule.AttendanceLog) error {
	k := attendancePairKey{StudentID: a.StudentID, SessionID: a.SessionID}
	if _, exists := m.attendanceByPair[k]; exists {
		return &schedule.DuplicateAttendanceError{StudentID: a.StudentID, SessionID: a.SessionID}
	}
	m.attendanceByPair[k] = a.ID
	m.attendance[a.ID] = a
	return nil
}

func (m *Memory) GetAttendanceLog(_ context.Context, id schedule.AttendanceID) (*schedule.AttendanceLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAttendanceLogLocked(id)
}

func (m *Memory) getAttendanceLogLocked(id schedule.AttendanceID) (*schedule.AttendanceLog, error) {
	a, ok := m.attendance[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) GetAttendanceForSession(_ context.Context, studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAttendanceForSessionLocked(studentID, sessionID)
}

func (m *Memory) getAttendanceForSessionLocked(studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	id, ok := m.attendanceByPair[attendancePairKey{StudentID: studentID, SessionID: sessionID}]
	if !ok {
		return nil, nil
	}
	return m.getAttendanceLogLocked(id)
}

func (m *Memory) UpdateAttendanceStatus(_ context.Context, id schedule.AttendanceID, status schedule.AttendanceStatus, valid bool, scannedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAttendanceStatusLocked(id, status, valid, scannedAt)
}

func (m *Memory) updateAttendanceStatusLocked(id schedule.AttendanceID, status schedule.AttendanceStatus, valid bool, scannedAt *time.Time) error {
	a, ok := m.attendance[id]
	if !ok {
		return schedule.ErrAttendanceNotFound
	}
	a.Status = status
	a.IsValid = valid
	a.ScannedAt = scannedAt
	m.attendance[id] = a
	return nil
}

func (m *Memory) ListRecentAttendance(_ context.Context, limit int) ([]schedule.AttendanceLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRecentAttendanceLocked(limit)
}

func (m *Memory) listRecentAttendanceLocked(limit int) ([]schedule.AttendanceLog, error) {
	out := make([]schedule.AttendanceLog, 0, len(m.attendance))
	for _, a := range m.attendance {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// STUDENTS / PLANS
// =============================================================================

func (m *Memory) GetStudent(_ context.Context, id schedule.StudentID) (*schedule.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStudentLocked(id)
}

func (m *Memory) getStudentLocked(id schedule.StudentID) (*schedule.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) AdjustStudentBalance(_ context.Context, id schedule.StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustStudentBalanceLocked(id, lessonsDelta, balanceDelta)
}

func (m *Memory) adjustStudentBalanceLocked(id schedule.StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error {
	s, ok := m.students[id]
	if !ok {
		return schedule.ErrStudentNotFound
	}
	s.LessonsRemaining += lessonsDelta
	s.SubscriptionBalance = s.SubscriptionBalance.Add(balanceDelta)
	m.students[id] = s
	return nil
}

func (m *Memory) GetPlan(_ context.Context, id schedule.PlanID) (*schedule.SubscriptionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPlanLocked(id)
}

func (m *Memory) getPlanLocked(id schedule.PlanID) (*schedule.SubscriptionPlan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) RecordSubscription(_ context.Context, sub schedule.StudentSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordSubscriptionLocked(sub)
}

func (m *Memory) recordSubscriptionLocked(sub schedule.StudentSubscription) error {
	m.purchases[sub.ID] = sub
	return nil
}

// ListSubscriptionsForStudent returns a student's purchase history,
// oldest first.
func (m *Memory) ListSubscriptionsForStudent(_ context.Context, studentID schedule.StudentID) ([]schedule.StudentSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schedule.StudentSubscription
	for _, sub := range m.purchases {
		if sub.StudentID == studentID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// SORT HELPERS - Deterministic listing order
// =============================================================================

func sortSchedules(ss []schedule.Schedule) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].CreatedAt.Equal(ss[j].CreatedAt) {
			return ss[i].CreatedAt.Before(ss[j].CreatedAt)
		}
		return ss[i].ID < ss[j].ID
	})
}

func sortSessions(ss []schedule.Session) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].Date.Equal(ss[j].Date) {
			return ss[i].Date.Before(ss[j].Date)
		}
		if ss[i].StartTime != ss[j].StartTime {
			return ss[i].StartTime < ss[j].StartTime
		}
		return ss[i].ID < ss[j].ID
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot and rollback on error.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(ctx context.Context, fn func(schedule.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	schedules             map[schedule.ScheduleID]schedule.Schedule
	sessions              map[schedule.SessionID]schedule.Session
	attendance            map[schedule.AttendanceID]schedule.AttendanceLog
	students              map[schedule.StudentID]schedule.Student
	plans                 map[schedule.PlanID]schedule.SubscriptionPlan
	purchases             map[string]schedule.StudentSubscription
	sessionByScheduleDate map[scheduleDateKey]schedule.SessionID
	attendanceByPair      map[attendancePairKey]schedule.AttendanceID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	return memorySnapshot{
		schedules:             cloneMap(tm.schedules),
		sessions:              cloneMap(tm.sessions),
		attendance:            cloneMap(tm.attendance),
		students:              cloneMap(tm.students),
		plans:                 cloneMap(tm.plans),
		purchases:             cloneMap(tm.purchases),
		sessionByScheduleDate: cloneMap(tm.sessionByScheduleDate),
		attendanceByPair:      cloneMap(tm.attendanceByPair),
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.schedules = s.schedules
	tm.sessions = s.sessions
	tm.attendance = s.attendance
	tm.students = s.students
	tm.plans = s.plans
	tm.purchases = s.purchases
	tm.sessionByScheduleDate = s.sessionByScheduleDate
	tm.attendanceByPair = s.attendanceByPair
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txMemoryView delegates to the parent's locked internals; the outer
// WithTx already holds the write lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) SaveSchedule(_ context.Context, s schedule.Schedule) error {
	return tv.parent.saveScheduleLocked(s)
}

func (tv *txMemoryView) GetSchedule(_ context.Context, id schedule.ScheduleID) (*schedule.Schedule, error) {
	return tv.parent.getScheduleLocked(id)
}

func (tv *txMemoryView) ListSchedulesByTeacher(_ context.Context, teacherID schedule.TeacherID) ([]schedule.Schedule, error) {
	return tv.parent.listSchedulesByTeacherLocked(teacherID)
}

func (tv *txMemoryView) ListRecurringSchedules(_ context.Context) ([]schedule.Schedule, error) {
	return tv.parent.listRecurringSchedulesLocked()
}

func (tv *txMemoryView) DeleteSchedule(_ context.Context, id schedule.ScheduleID) error {
	return tv.parent.deleteScheduleLocked(id)
}

func (tv *txMemoryView) CreateSession(_ context.Context, s schedule.Session) error {
	return tv.parent.createSessionLocked(s)
}

func (tv *txMemoryView) GetSession(_ context.Context, id schedule.SessionID) (*schedule.Session, error) {
	return tv.parent.getSessionLocked(id)
}

func (tv *txMemoryView) GetSessionByScheduleDate(_ context.Context, scheduleID schedule.ScheduleID, date time.Time) (*schedule.Session, error) {
	return tv.parent.getSessionByScheduleDateLocked(scheduleID, date)
}

func (tv *txMemoryView) ListSessionsBySchedule(_ context.Context, scheduleID schedule.ScheduleID) ([]schedule.Session, error) {
	return tv.parent.listSessionsByScheduleLocked(scheduleID)
}

func (tv *txMemoryView) ListSessionsOnDate(_ context.Context, date time.Time) ([]schedule.Session, error) {
	return tv.parent.listSessionsOnDateLocked(date)
}

func (tv *txMemoryView) ListSessionsForStudentOnDate(_ context.Context, studentID schedule.StudentID, date time.Time) ([]schedule.Session, error) {
	return tv.parent.listSessionsForStudentOnDateLocked(studentID, date)
}

func (tv *txMemoryView) UpdateSessionStatus(_ context.Context, id schedule.SessionID, status schedule.SessionStatus) error {
	return tv.parent.updateSessionStatusLocked(id, status)
}

func (tv *txMemoryView) CountSessionsAfter(_ context.Context, scheduleID schedule.ScheduleID, after time.Time) (int, error) {
	return tv.parent.countSessionsAfterLocked(scheduleID, after)
}

func (tv *txMemoryView) DeleteSessionsAfter(_ context.Context, scheduleID schedule.ScheduleID, after time.Time) error {
	return tv.parent.deleteSessionsAfterLocked(scheduleID, after)
}

func (tv *txMemoryView) CreateAttendanceLog(_ context.Context, a schedule.AttendanceLog) error {
	return tv.parent.createAttendanceLogLocked(a)
}

func (tv *txMemoryView) GetAttendanceLog(_ context.Context, id schedule.AttendanceID) (*schedule.AttendanceLog, error) {
	return tv.parent.getAttendanceLogLocked(id)
}

func (tv *txMemoryView) GetAttendanceForSession(_ context.Context, studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	return tv.parent.getAttendanceForSessionLocked(studentID, sessionID)
}

func (tv *txMemoryView) UpdateAttendanceStatus(_ context.Context, id schedule.AttendanceID, status schedule.AttendanceStatus, valid bool, scannedAt *time.Time) error {
	return tv.parent.updateAttendanceStatusLocked(id, status, valid, scannedAt)
}

func (tv *txMemoryView) ListRecentAttendance(_ context.Context, limit int) ([]schedule.AttendanceLog, error) {
	return tv.parent.listRecentAttendanceLocked(limit)
}

func (tv *txMemoryView) GetStudent(_ context.Context, id schedule.StudentID) (*schedule.Student, error) {
	return tv.parent.getStudentLocked(id)
}

func (tv *txMemoryView) AdjustStudentBalance(_ context.Context, id schedule.StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error {
	return tv.parent.adjustStudentBalanceLocked(id, lessonsDelta, balanceDelta)
}

func (tv *txMemoryView) GetPlan(_ context.Context, id schedule.PlanID) (*schedule.SubscriptionPlan, error) {
	return tv.parent.getPlanLocked(id)
}

func (tv *txMemoryView) RecordSubscription(_ context.Context, sub schedule.StudentSubscription) error {
	return tv.parent.recordSubscriptionLocked(sub)
}
