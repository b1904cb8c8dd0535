/*
Package sqlite provides the SQLite-backed implementation of the
storage interfaces.

PURPOSE:
  Implements schedule.TxStore plus the roster/catalog persistence the
  API layer needs (teachers, students, groups, plans, performance).
  In production the same patterns apply to PostgreSQL, only minor SQL
  dialect differences.

KEY TABLES:
  schedules:          Recurring weekly commitments (group XOR student)
  sessions:           Dated occurrences, payment snapshotted
  attendance_logs:    One row per (student, session), status-mutable
  students:           Roster plus the prepaid balance columns
  teachers, groups, group_students, subscription_plans, performances

CONSTRAINT-BACKED INVARIANTS:
  Two unique indexes are load-bearing, not performance tweaks:
  - idx_unique_session_day:      one session per (schedule, date); the
                                 generator's idempotency backstop
  - idx_unique_attendance_pair:  one attendance per (student, session);
                                 decides which of two concurrent scans
                                 wins
  Constraint violations are mapped back to the domain errors so
  callers never see raw SQLite messages.

DELETE SEMANTICS:
  sessions.schedule_id is ON DELETE SET NULL: removing a schedule
  leaves past sessions in place as degenerate, schedule-less rows.
  Future-session policy is enforced above this layer.

CONCURRENCY:
  WAL mode plus a sync.RWMutex. The mutex serializes writers at the
  process level; the database constraints remain the source of truth.

MIGRATION:
  Schema is auto-migrated on New(). ":memory:" works for tests.

SEE ALSO:
  - schedule/store.go: interface definitions and contracts
  - schedule/store/memory.go: in-memory implementation for tests
  - billing/ledger.go: the only caller of AdjustStudentBalance
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/classtrack/lesson-engine/schedule"
)

const (
	dateLayout = "2006-01-02"
)

// Store implements schedule.TxStore and the roster stores using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Teachers
	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		specializations_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Students (roster fields plus the prepaid balance columns;
	-- lessons_remaining and subscription_balance move only through
	-- AdjustStudentBalance)
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		level TEXT,
		qr_code TEXT NOT NULL,
		lessons_remaining INTEGER NOT NULL DEFAULT 0,
		subscription_balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_students_qr_code
		ON students(qr_code);

	-- Groups
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		language TEXT,
		level TEXT,
		teacher_id TEXT REFERENCES teachers(id),
		max_capacity INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_students (
		group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (group_id, student_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_students_student
		ON group_students(student_id);

	-- Schedules: recurring weekly commitments. Exactly one of group_id
	-- and student_id is set.
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL REFERENCES teachers(id),
		group_id TEXT REFERENCES groups(id),
		student_id TEXT REFERENCES students(id),
		days_json TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		rate TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		CHECK ((group_id IS NULL) != (student_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_teacher
		ON schedules(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_schedules_recurring
		ON schedules(recurring);

	-- Sessions: dated occurrences. schedule_id is NULL for the
	-- degenerate walk-in path and goes NULL when a schedule is deleted.
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		schedule_id TEXT REFERENCES schedules(id) ON DELETE SET NULL,
		teacher_id TEXT,
		group_id TEXT,
		student_id TEXT,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		payment TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		CHECK ((group_id IS NULL) != (student_id IS NULL))
	);

	-- CRITICAL: one session per (schedule, date). The generator relies
	-- on this to stay idempotent under concurrent generation passes.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_session_day
		ON sessions(schedule_id, date)
		WHERE schedule_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_sessions_date
		ON sessions(date);
	CREATE INDEX IF NOT EXISTS idx_sessions_schedule
		ON sessions(schedule_id) WHERE schedule_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_student_date
		ON sessions(student_id, date) WHERE student_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_group_date
		ON sessions(group_id, date) WHERE group_id IS NOT NULL;

	-- Attendance: one row per (student, session). The unique index is
	-- the mutex deciding which of two concurrent scans wins.
	CREATE TABLE IF NOT EXISTS attendance_logs (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		session_id TEXT NOT NULL REFERENCES sessions(id),
		status TEXT NOT NULL,
		is_valid BOOLEAN NOT NULL DEFAULT FALSE,
		scanned_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_attendance_pair
		ON attendance_logs(student_id, session_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_created
		ON attendance_logs(created_at DESC);

	-- Subscription plans (catalog)
	CREATE TABLE IF NOT EXISTS subscription_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lessons INTEGER NOT NULL,
		price TEXT NOT NULL
	);

	-- Plan purchases, append-only; lessons/price snapshot the plan at
	-- purchase time
	CREATE TABLE IF NOT EXISTS student_subscriptions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		plan_id TEXT NOT NULL,
		lessons INTEGER NOT NULL,
		price TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_student
		ON student_subscriptions(student_id, created_at);

	-- Performance feedback, append-only
	CREATE TABLE IF NOT EXISTS performances (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		session_id TEXT NOT NULL REFERENCES sessions(id),
		date TEXT NOT NULL,
		vocabulary_score TEXT,
		grammar_score TEXT,
		speaking_score TEXT,
		listening_score TEXT,
		comments TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_performances_student
		ON performances(student_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the executor shared by *sql.DB and *sql.Tx so every helper
// runs both standalone and inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SCHEDULES (schedule.Store interface)
// =============================================================================

func (s *Store) SaveSchedule(ctx context.Context, sched schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSchedule(ctx, s.db, sched)
}

func (s *Store) saveSchedule(ctx context.Context, db dbtx, sched schedule.Schedule) error {
	daysJSON, _ := json.Marshal(sched.Days.Ints())

	query := `
		INSERT INTO schedules
		(id, teacher_id, group_id, student_id, days_json, start_time, end_time, rate, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			days_json = excluded.days_json,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			rate = excluded.rate,
			recurring = excluded.recurring
	`

	_, err := db.ExecContext(ctx, query,
		string(sched.ID),
		string(sched.TeacherID),
		nullString(string(sched.Target.GroupID)),
		nullString(string(sched.Target.StudentID)),
		string(daysJSON),
		sched.StartTime.String(),
		sched.EndTime.String(),
		sched.Rate.String(),
		sched.Recurring,
		sched.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id schedule.ScheduleID) (*schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSchedule(ctx, s.db, id)
}

const scheduleColumns = `id, teacher_id, group_id, student_id, days_json, start_time, end_time, rate, recurring, created_at`

func (s *Store) getSchedule(ctx context.Context, db dbtx, id schedule.ScheduleID) (*schedule.Schedule, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sched, err := scanSchedule(rows)
	if err != nil {
		return nil, err
	}
	return &sched, nil
}

func (s *Store) ListSchedulesByTeacher(ctx context.Context, teacherID schedule.TeacherID) ([]schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySchedules(ctx, s.db,
		`SELECT `+scheduleColumns+` FROM schedules WHERE teacher_id = ? ORDER BY created_at ASC, id ASC`,
		string(teacherID))
}

func (s *Store) ListRecurringSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySchedules(ctx, s.db,
		`SELECT `+scheduleColumns+` FROM schedules WHERE recurring ORDER BY created_at ASC, id ASC`)
}

func (s *Store) DeleteSchedule(ctx context.Context, id schedule.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSchedule(ctx, s.db, id)
}

func (s *Store) deleteSchedule(ctx context.Context, db dbtx, id schedule.ScheduleID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

func (s *Store) querySchedules(ctx context.Context, db dbtx, query string, args ...any) ([]schedule.Schedule, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []schedule.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func scanSchedule(rows *sql.Rows) (schedule.Schedule, error) {
	var (
		sched      schedule.Schedule
		groupID    sql.NullString
		studentID  sql.NullString
		daysJSON   string
		startTime  string
		endTime    string
		rate       string
		createdAt  string
	)

	err := rows.Scan(&sched.ID, &sched.TeacherID, &groupID, &studentID,
		&daysJSON, &startTime, &endTime, &rate, &sched.Recurring, &createdAt)
	if err != nil {
		return sched, fmt.Errorf("failed to scan schedule: %w", err)
	}

	sched.Target = scanTarget(groupID, studentID)

	var days []int
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return sched, fmt.Errorf("failed to decode schedule days: %w", err)
	}
	sched.Days, err = schedule.NewWeekdaySet(days)
	if err != nil {
		return sched, err
	}

	if sched.StartTime, err = schedule.ParseTimeOfDay(startTime); err != nil {
		return sched, err
	}
	if sched.EndTime, err = schedule.ParseTimeOfDay(endTime); err != nil {
		return sched, err
	}
	if sched.Rate, err = decimal.NewFromString(rate); err != nil {
		return sched, fmt.Errorf("failed to parse schedule rate: %w", err)
	}
	sched.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return sched, nil
}

// =============================================================================
// SESSIONS (schedule.Store interface)
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, sess schedule.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSession(ctx, s.db, sess)
}

func (s *Store) createSession(ctx context.Context, db dbtx, sess schedule.Session) error {
	query := `
		INSERT INTO sessions
		(id, schedule_id, teacher_id, group_id, student_id, date, start_time, end_time, payment, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(sess.ID),
		nullString(string(sess.ScheduleID)),
		string(sess.TeacherID),
		nullString(string(sess.Target.GroupID)),
		nullString(string(sess.Target.StudentID)),
		sess.Date.Format(dateLayout),
		sess.StartTime.String(),
		sess.EndTime.String(),
		sess.Payment.String(),
		string(sess.Status),
		sess.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return schedule.ErrDuplicateSession
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const sessionColumns = `id, schedule_id, teacher_id, group_id, student_id, date, start_time, end_time, payment, status, created_at`

func (s *Store) GetSession(ctx context.Context, id schedule.SessionID) (*schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSession(ctx, s.db, id)
}

func (s *Store) getSession(ctx context.Context, db dbtx, id schedule.SessionID) (*schedule.Session, error) {
	sessions, err := s.querySessions(ctx, db,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, string(id))
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

func (s *Store) GetSessionByScheduleDate(ctx context.Context, scheduleID schedule.ScheduleID, date time.Time) (*schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSessionByScheduleDate(ctx, s.db, scheduleID, date)
}

func (s *Store) getSessionByScheduleDate(ctx context.Context, db dbtx, scheduleID schedule.ScheduleID, date time.Time) (*schedule.Session, error) {
	sessions, err := s.querySessions(ctx, db,
		`SELECT `+sessionColumns+` FROM sessions WHERE schedule_id = ? AND date = ?`,
		string(scheduleID), date.Format(dateLayout))
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

func (s *Store) ListSessionsBySchedule(ctx context.Context, scheduleID schedule.ScheduleID) ([]schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySessions(ctx, s.db,
		`SELECT `+sessionColumns+` FROM sessions WHERE schedule_id = ? ORDER BY date ASC, start_time ASC`,
		string(scheduleID))
}

func (s *Store) ListSessionsOnDate(ctx context.Context, date time.Time) ([]schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSessionsOnDate(ctx, s.db, date)
}

func (s *Store) listSessionsOnDate(ctx context.Context, db dbtx, date time.Time) ([]schedule.Session, error) {
	return s.querySessions(ctx, db,
		`SELECT `+sessionColumns+` FROM sessions WHERE date = ? ORDER BY start_time ASC, id ASC`,
		date.Format(dateLayout))
}

func (s *Store) ListSessionsForStudentOnDate(ctx context.Context, studentID schedule.StudentID, date time.Time) ([]schedule.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSessionsForStudentOnDate(ctx, s.db, studentID, date)
}

func (s *Store) listSessionsForStudentOnDate(ctx context.Context, db dbtx, studentID schedule.StudentID, date time.Time) ([]schedule.Session, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE date = ?
		  AND (student_id = ?
		       OR group_id IN (SELECT group_id FROM group_students WHERE student_id = ?))
		ORDER BY start_time ASC, id ASC
	`
	return s.querySessions(ctx, db, query,
		date.Format(dateLayout), string(studentID), string(studentID))
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id schedule.SessionID, status schedule.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSessionStatus(ctx, s.db, id, status)
}

func (s *Store) updateSessionStatus(ctx context.Context, db dbtx, id schedule.SessionID, status schedule.SessionStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CountSessionsAfter(ctx context.Context, scheduleID schedule.ScheduleID, after time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countSessionsAfter(ctx, s.db, scheduleID, after)
}

func (s *Store) countSessionsAfter(ctx context.Context, db dbtx, scheduleID schedule.ScheduleID, after time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE schedule_id = ? AND date > ?`,
		string(scheduleID), after.Format(dateLayout),
	).Scan(&count)
	return count, err
}

func (s *Store) DeleteSessionsAfter(ctx context.Context, scheduleID schedule.ScheduleID, after time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSessionsAfter(ctx, s.db, scheduleID, after)
}

func (s *Store) deleteSessionsAfter(ctx context.Context, db dbtx, scheduleID schedule.ScheduleID, after time.Time) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM sessions WHERE schedule_id = ? AND date > ?`,
		string(scheduleID), after.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to delete future sessions: %w", err)
	}
	return nil
}

func (s *Store) querySessions(ctx context.Context, db dbtx, query string, args ...any) ([]schedule.Session, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []schedule.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(rows *sql.Rows) (schedule.Session, error) {
	var (
		sess       schedule.Session
		scheduleID sql.NullString
		teacherID  sql.NullString
		groupID    sql.NullString
		studentID  sql.NullString
		date       string
		startTime  string
		endTime    string
		payment    string
		createdAt  string
	)

	err := rows.Scan(&sess.ID, &scheduleID, &teacherID, &groupID, &studentID,
		&date, &startTime, &endTime, &payment, &sess.Status, &createdAt)
	if err != nil {
		return sess, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.ScheduleID = schedule.ScheduleID(scheduleID.String)
	sess.TeacherID = schedule.TeacherID(teacherID.String)
	sess.Target = scanTarget(groupID, studentID)
	sess.Date, _ = time.Parse(dateLayout, date)
	if sess.StartTime, err = schedule.ParseTimeOfDay(startTime); err != nil {
		return sess, err
	}
	if sess.EndTime, err = schedule.ParseTimeOfDay(endTime); err != nil {
		return sess, err
	}
	if sess.Payment, err = decimal.NewFromString(payment); err != nil {
		return sess, fmt.Errorf("failed to parse session payment: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return sess, nil
}

// =============================================================================
// ATTENDANCE (schedule.Store interface)
// =============================================================================

func (s *Store) CreateAttendanceLog(ctx context.Context, a schedule.AttendanceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAttendanceLog(ctx, s.db, a)
}

func (s *Store) createAttendanceLog(ctx context.Context, db dbtx, a schedule.AttendanceLog) error {
	query := `
		INSERT INTO attendance_logs
		(id, student_id, session_id, status, is_valid, scanned_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var scannedAt sql.NullString
	if a.ScannedAt != nil {
		scannedAt = sql.NullString{String: a.ScannedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		string(a.ID),
		string(a.StudentID),
		string(a.SessionID),
		string(a.Status),
		a.IsValid,
		scannedAt,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &schedule.DuplicateAttendanceError{
				StudentID: a.StudentID,
				SessionID: a.SessionID,
			}
		}
		return fmt.Errorf("failed to create attendance log: %w", err)
	}
	return nil
}

const attendanceColumns = `id, student_id, session_id, status, is_valid, scanned_at, created_at`

func (s *Store) GetAttendanceLog(ctx context.Context, id schedule.AttendanceID) (*schedule.AttendanceLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAttendanceLog(ctx, s.db, id)
}

func (s *Store) getAttendanceLog(ctx context.Context, db dbtx, id schedule.AttendanceID) (*schedule.AttendanceLog, error) {
	logs, err := s.queryAttendance(ctx, db,
		`SELECT `+attendanceColumns+` FROM attendance_logs WHERE id = ?`, string(id))
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return &logs[0], nil
}

func (s *Store) GetAttendanceForSession(ctx context.Context, studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAttendanceForSession(ctx, s.db, studentID, sessionID)
}

func (s *Store) getAttendanceForSession(ctx context.Context, db dbtx, studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	logs, err := s.queryAttendance(ctx, db,
		`SELECT `+attendanceColumns+` FROM attendance_logs WHERE student_id = ? AND session_id = ?`,
		string(studentID), string(sessionID))
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return &logs[0], nil
}

func (s *Store) UpdateAttendanceStatus(ctx context.Context, id schedule.AttendanceID, status schedule.AttendanceStatus, valid bool, scannedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAttendanceStatus(ctx, s.db, id, status, valid, scannedAt)
}

func (s *Store) updateAttendanceStatus(ctx context.Context, db dbtx, id schedule.AttendanceID, status schedule.AttendanceStatus, valid bool, scannedAt *time.Time) error {
	var scanned sql.NullString
	if scannedAt != nil {
		scanned = sql.NullString{String: scannedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	res, err := db.ExecContext(ctx,
		`UPDATE attendance_logs SET status = ?, is_valid = ?, scanned_at = ? WHERE id = ?`,
		string(status), valid, scanned, string(id))
	if err != nil {
		return fmt.Errorf("failed to update attendance status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrAttendanceNotFound
	}
	return nil
}

func (s *Store) ListRecentAttendance(ctx context.Context, limit int) ([]schedule.AttendanceLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRecentAttendance(ctx, s.db, limit)
}

func (s *Store) listRecentAttendance(ctx context.Context, db dbtx, limit int) ([]schedule.AttendanceLog, error) {
	return s.queryAttendance(ctx, db,
		`SELECT `+attendanceColumns+` FROM attendance_logs ORDER BY created_at DESC, id ASC LIMIT ?`,
		limit)
}

func (s *Store) queryAttendance(ctx context.Context, db dbtx, query string, args ...any) ([]schedule.AttendanceLog, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []schedule.AttendanceLog
	for rows.Next() {
		var (
			a         schedule.AttendanceLog
			scannedAt sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.StudentID, &a.SessionID, &a.Status,
			&a.IsValid, &scannedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance log: %w", err)
		}
		if scannedAt.Valid {
			t, _ := time.Parse(time.RFC3339, scannedAt.String)
			a.ScannedAt = &t
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// STUDENTS - Balance side (schedule.Store interface)
// =============================================================================

const studentColumns = `id, name, email, phone, level, qr_code, lessons_remaining, subscription_balance, created_at`

func (s *Store) GetStudent(ctx context.Context, id schedule.StudentID) (*schedule.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStudent(ctx, s.db, id)
}

func (s *Store) getStudent(ctx context.Context, db dbtx, id schedule.StudentID) (*schedule.Student, error) {
	students, err := s.queryStudents(ctx, db,
		`SELECT `+studentColumns+` FROM students WHERE id = ?`, string(id))
	if err != nil || len(students) == 0 {
		return nil, err
	}
	return &students[0], nil
}

// AdjustStudentBalance applies relative deltas in SQL so concurrent
// adjustments never lose updates to read-modify-write races.
func (s *Store) AdjustStudentBalance(ctx context.Context, id schedule.StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustStudentBalance(ctx, s.db, id, lessonsDelta, balanceDelta)
}

func (s *Store) adjustStudentBalance(ctx context.Context, db dbtx, id schedule.StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error {
	// The balance is stored as TEXT for exactness, so the arithmetic
	// happens here on decimals and the row update stays guarded by the
	// surrounding transaction plus the store mutex.
	var balance string
	err := db.QueryRowContext(ctx,
		`SELECT subscription_balance FROM students WHERE id = ?`, string(id),
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return schedule.ErrStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read student balance: %w", err)
	}

	current, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("failed to parse student balance: %w", err)
	}
	next := current.Add(balanceDelta)

	_, err = db.ExecContext(ctx,
		`UPDATE students
		 SET lessons_remaining = lessons_remaining + ?, subscription_balance = ?
		 WHERE id = ?`,
		lessonsDelta, next.String(), string(id))
	if err != nil {
		return fmt.Errorf("failed to adjust student balance: %w", err)
	}
	return nil
}

func (s *Store) queryStudents(ctx context.Context, db dbtx, query string, args ...any) ([]schedule.Student, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var out []schedule.Student
	for rows.Next() {
		var (
			st        schedule.Student
			email     sql.NullString
			phone     sql.NullString
			level     sql.NullString
			balance   string
			createdAt string
		)
		if err := rows.Scan(&st.ID, &st.Name, &email, &phone, &level,
			&st.QRCode, &st.LessonsRemaining, &balance, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		st.Email = email.String
		st.Phone = phone.String
		st.Level = level.String
		if st.SubscriptionBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("failed to parse student balance: %w", err)
		}
		st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// =============================================================================
// SUBSCRIPTION PLANS (schedule.Store read side + catalog CRUD)
// =============================================================================

func (s *Store) GetPlan(ctx context.Context, id schedule.PlanID) (*schedule.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPlan(ctx, s.db, id)
}

func (s *Store) getPlan(ctx context.Context, db dbtx, id schedule.PlanID) (*schedule.SubscriptionPlan, error) {
	plans, err := s.queryPlans(ctx, db,
		`SELECT id, name, lessons, price FROM subscription_plans WHERE id = ?`, string(id))
	if err != nil || len(plans) == 0 {
		return nil, err
	}
	return &plans[0], nil
}

func (s *Store) SavePlan(ctx context.Context, p schedule.SubscriptionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO subscription_plans (id, name, lessons, price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			lessons = excluded.lessons,
			price = excluded.price
	`
	_, err := s.db.ExecContext(ctx, query,
		string(p.ID), p.Name, p.Lessons, p.Price.String())
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context) ([]schedule.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPlans(ctx, s.db,
		`SELECT id, name, lessons, price FROM subscription_plans ORDER BY lessons ASC, id ASC`)
}

func (s *Store) queryPlans(ctx context.Context, db dbtx, query string, args ...any) ([]schedule.SubscriptionPlan, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var out []schedule.SubscriptionPlan
	for rows.Next() {
		var (
			p     schedule.SubscriptionPlan
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Lessons, &price); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse plan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) RecordSubscription(ctx context.Context, sub schedule.StudentSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordSubscription(ctx, s.db, sub)
}

func (s *Store) recordSubscription(ctx context.Context, db dbtx, sub schedule.StudentSubscription) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO student_subscriptions (id, student_id, plan_id, lessons, price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, string(sub.StudentID), string(sub.PlanID),
		sub.Lessons, sub.Price.String(), sub.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record subscription: %w", err)
	}
	return nil
}

// ListSubscriptionsForStudent returns a student's purchase history,
// oldest first.
func (s *Store) ListSubscriptionsForStudent(ctx context.Context, studentID schedule.StudentID) ([]schedule.StudentSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, plan_id, lessons, price, created_at
		 FROM student_subscriptions WHERE student_id = ? ORDER BY created_at ASC, id ASC`,
		string(studentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []schedule.StudentSubscription
	for rows.Next() {
		var (
			sub       schedule.StudentSubscription
			price     string
			createdAt string
		)
		if err := rows.Scan(&sub.ID, &sub.StudentID, &sub.PlanID, &sub.Lessons, &price, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if sub.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse subscription price: %w", err)
		}
		sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// =============================================================================
// ROSTER CRUD - Teachers
// =============================================================================

func (s *Store) SaveTeacher(ctx context.Context, t schedule.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	specJSON, _ := json.Marshal(t.Specializations)
	query := `
		INSERT INTO teachers (id, name, email, phone, specializations_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			specializations_json = excluded.specializations_json
	`
	_, err := s.db.ExecContext(ctx, query,
		string(t.ID), t.Name, nullString(t.Email), nullString(t.Phone),
		string(specJSON), t.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save teacher: %w", err)
	}
	return nil
}

func (s *Store) GetTeacher(ctx context.Context, id schedule.TeacherID) (*schedule.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	teachers, err := s.queryTeachers(ctx,
		`SELECT id, name, email, phone, specializations_json, created_at FROM teachers WHERE id = ?`,
		string(id))
	if err != nil || len(teachers) == 0 {
		return nil, err
	}
	return &teachers[0], nil
}

func (s *Store) ListTeachers(ctx context.Context) ([]schedule.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTeachers(ctx,
		`SELECT id, name, email, phone, specializations_json, created_at FROM teachers ORDER BY name ASC, id ASC`)
}

func (s *Store) DeleteTeacher(ctx context.Context, id schedule.TeacherID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM teachers WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete teacher: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrTeacherNotFound
	}
	return nil
}

func (s *Store) queryTeachers(ctx context.Context, query string, args ...any) ([]schedule.Teacher, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query teachers: %w", err)
	}
	defer rows.Close()

	var out []schedule.Teacher
	for rows.Next() {
		var (
			t         schedule.Teacher
			email     sql.NullString
			phone     sql.NullString
			specJSON  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Name, &email, &phone, &specJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan teacher: %w", err)
		}
		t.Email = email.String
		t.Phone = phone.String
		if specJSON.Valid && specJSON.String != "" {
			json.Unmarshal([]byte(specJSON.String), &t.Specializations)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// ROSTER CRUD - Students
// =============================================================================

// SaveStudent inserts or updates the roster fields. The balance
// columns are deliberately absent from the upsert: new students start
// at zero and existing balances only move through AdjustStudentBalance.
func (s *Store) SaveStudent(ctx context.Context, st schedule.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO students (id, name, email, phone, level, qr_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			level = excluded.level,
			qr_code = excluded.qr_code
	`
	_, err := s.db.ExecContext(ctx, query,
		string(st.ID), st.Name, nullString(st.Email), nullString(st.Phone),
		nullString(st.Level), st.QRCode, st.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (s *Store) ListStudents(ctx context.Context) ([]schedule.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryStudents(ctx, s.db,
		`SELECT `+studentColumns+` FROM students ORDER BY name ASC, id ASC`)
}

func (s *Store) DeleteStudent(ctx context.Context, id schedule.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrStudentNotFound
	}
	return nil
}

// GetStudentByQRCode resolves a scan token to its student.
func (s *Store) GetStudentByQRCode(ctx context.Context, code string) (*schedule.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	students, err := s.queryStudents(ctx, s.db,
		`SELECT `+studentColumns+` FROM students WHERE qr_code = ?`, code)
	if err != nil || len(students) == 0 {
		return nil, err
	}
	return &students[0], nil
}

// =============================================================================
// ROSTER CRUD - Groups and membership
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g schedule.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO groups (id, name, description, language, level, teacher_id, max_capacity, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			language = excluded.language,
			level = excluded.level,
			teacher_id = excluded.teacher_id,
			max_capacity = excluded.max_capacity,
			status = excluded.status
	`
	_, err := s.db.ExecContext(ctx, query,
		string(g.ID), g.Name, nullString(g.Description), nullString(g.Language),
		nullString(g.Level), nullString(string(g.TeacherID)), g.MaxCapacity,
		string(g.Status), g.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id schedule.GroupID) (*schedule.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups, err := s.queryGroups(ctx,
		`SELECT id, name, description, language, level, teacher_id, max_capacity, status, created_at
		 FROM groups WHERE id = ?`, string(id))
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return &groups[0], nil
}

func (s *Store) ListGroups(ctx context.Context) ([]schedule.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryGroups(ctx,
		`SELECT id, name, description, language, level, teacher_id, max_capacity, status, created_at
		 FROM groups ORDER BY name ASC, id ASC`)
}

func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]schedule.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []schedule.Group
	for rows.Next() {
		var (
			g           schedule.Group
			description sql.NullString
			language    sql.NullString
			level       sql.NullString
			teacherID   sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&g.ID, &g.Name, &description, &language, &level,
			&teacherID, &g.MaxCapacity, &g.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Description = description.String
		g.Language = language.String
		g.Level = level.String
		g.TeacherID = schedule.TeacherID(teacherID.String)
		g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) AddGroupMember(ctx context.Context, groupID schedule.GroupID, studentID schedule.StudentID, joinedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_students (group_id, student_id, joined_at) VALUES (?, ?, ?)`,
		string(groupID), string(studentID), joinedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID schedule.GroupID, studentID schedule.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_students WHERE group_id = ? AND student_id = ?`,
		string(groupID), string(studentID))
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID schedule.GroupID) ([]schedule.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, student_id, joined_at FROM group_students WHERE group_id = ? ORDER BY joined_at ASC`,
		string(groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var out []schedule.GroupMember
	for rows.Next() {
		var (
			m        schedule.GroupMember
			joinedAt string
		)
		if err := rows.Scan(&m.GroupID, &m.StudentID, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		m.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// PERFORMANCE FEEDBACK
// =============================================================================

func (s *Store) SavePerformance(ctx context.Context, p schedule.Performance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO performances
		(id, student_id, session_id, date, vocabulary_score, grammar_score, speaking_score, listening_score, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, string(p.StudentID), string(p.SessionID),
		p.Date.Format(dateLayout),
		nullDecimal(p.VocabularyScore),
		nullDecimal(p.GrammarScore),
		nullDecimal(p.SpeakingScore),
		nullDecimal(p.ListeningScore),
		nullString(p.Comments),
		p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save performance: %w", err)
	}
	return nil
}

func (s *Store) ListPerformanceForStudent(ctx context.Context, studentID schedule.StudentID) ([]schedule.Performance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, session_id, date, vocabulary_score, grammar_score, speaking_score, listening_score, comments, created_at
		 FROM performances WHERE student_id = ? ORDER BY date ASC, created_at ASC`,
		string(studentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query performances: %w", err)
	}
	defer rows.Close()

	var out []schedule.Performance
	for rows.Next() {
		var (
			p          schedule.Performance
			date       string
			vocabulary sql.NullString
			grammar    sql.NullString
			speaking   sql.NullString
			listening  sql.NullString
			comments   sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&p.ID, &p.StudentID, &p.SessionID, &date,
			&vocabulary, &grammar, &speaking, &listening, &comments, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		p.Date, _ = time.Parse(dateLayout, date)
		if p.VocabularyScore, err = scanDecimal(vocabulary); err != nil {
			return nil, err
		}
		if p.GrammarScore, err = scanDecimal(grammar); err != nil {
			return nil, err
		}
		if p.SpeakingScore, err = scanDecimal(speaking); err != nil {
			return nil, err
		}
		if p.ListeningScore, err = scanDecimal(listening); err != nil {
			return nil, err
		}
		p.Comments = comments.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (schedule.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store schedule.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveSchedule(ctx context.Context, sched schedule.Schedule) error {
	return ts.parent.saveSchedule(ctx, ts.tx, sched)
}

func (ts *txStore) GetSchedule(ctx context.Context, id schedule.ScheduleID) (*schedule.Schedule, error) {
	return ts.parent.getSchedule(ctx, ts.tx, id)
}

func (ts *txStore) ListSchedulesByTeacher(ctx context.Context, teacherID schedule.TeacherID) ([]schedule.Schedule, error) {
	return ts.parent.querySchedules(ctx, ts.tx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE teacher_id = ? ORDER BY created_at ASC, id ASC`,
		string(teacherID))
}

func (ts *txStore) ListRecurringSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	return ts.parent.querySchedules(ctx, ts.tx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE recurring ORDER BY created_at ASC, id ASC`)
}

func (ts *txStore) DeleteSchedule(ctx context.Context, id schedule.ScheduleID) error {
	return ts.parent.deleteSchedule(ctx, ts.tx, id)
}

func (ts *txStore) CreateSession(ctx context.Context, sess schedule.Session) error {
	return ts.parent.createSession(ctx, ts.tx, sess)
}

func (ts *txStore) GetSession(ctx context.Context, id schedule.SessionID) (*schedule.Session, error) {
	return ts.parent.getSession(ctx, ts.tx, id)
}

func (ts *txStore) GetSessionByScheduleDate(ctx context.Context, scheduleID schedule.ScheduleID, date time.Time) (*schedule.Session, error) {
	return ts.parent.getSessionByScheduleDate(ctx, ts.tx, scheduleID, date)
}

func (ts *txStore) ListSessionsBySchedule(ctx context.Context, scheduleID schedule.ScheduleID) ([]schedule.Session, error) {
	return ts.parent.querySessions(ctx, ts.tx,
		`SELECT `+sessionColumns+` FROM sessions WHERE schedule_id = ? ORDER BY date ASC, start_time ASC`,
		string(scheduleID))
}

func (ts *txStore) ListSessionsOnDate(ctx context.Context, date time.Time) ([]schedule.Session, error) {
	return ts.parent.listSessionsOnDate(ctx, ts.tx, date)
}

func (ts *txStore) ListSessionsForStudentOnDate(ctx context.Context, studentID schedule.StudentID, date time.Time) ([]schedule.Session, error) {
	return ts.parent.listSessionsForStudentOnDate(ctx, ts.tx, studentID, date)
}

func (ts *txStore) UpdateSessionStatus(ctx context.Context, id schedule.SessionID, status schedule.SessionStatus) error {
	return ts.parent.updateSessionStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) CountSessionsAfter(ctx context.Context, scheduleID schedule.ScheduleID, after time.Time) (int, error) {
	return ts.parent.countSessionsAfter(ctx, ts.tx, scheduleID, after)
}

func (ts *txStore) DeleteSessionsAfter(ctx context.Context, scheduleID schedule.ScheduleID, after time.Time) error {
	return ts.parent.deleteSessionsAfter(ctx, ts.tx, scheduleID, after)
}

func (ts *txStore) CreateAttendanceLog(ctx context.Context, a schedule.AttendanceLog) error {
	return ts.parent.createAttendanceLog(ctx, ts.tx, a)
}

func (ts *txStore) GetAttendanceLog(ctx context.Context, id schedule.AttendanceID) (*schedule.AttendanceLog, error) {
	return ts.parent.getAttendanceLog(ctx, ts.tx, id)
}

func (ts *txStore) GetAttendanceForSession(ctx context.Context, studentID schedule.StudentID, sessionID schedule.SessionID) (*schedule.AttendanceLog, error) {
	return ts.parent.getAttendanceForSession(ctx, ts.tx, studentID, sessionID)
}

func (ts *txStore) UpdateAttendanceStatus(ctx context.Context, id schedule.AttendanceID, status schedule.AttendanceStatus, valid bool, scannedAt *time.Time) error {
	return ts.parent.updateAttendanceStatus(ctx, ts.tx, id, status, valid, scannedAt)
}

func (ts *txStore) ListRecentAttendance(ctx context.Context, limit int) ([]schedule.AttendanceLog, error) {
	return ts.parent.listRecentAttendance(ctx, ts.tx, limit)
}

func (ts *txStore) GetStudent(ctx context.Context, id schedule.StudentID) (*schedule.Student, error) {
	return ts.parent.getStudent(ctx, ts.tx, id)
}

func (ts *txStore) AdjustStudentBalance(ctx context.Context, id schedule.StudentID, lessonsDelta int, balanceDelta decimal.Decimal) error {
	return ts.parent.adjustStudentBalance(ctx, ts.tx, id, lessonsDelta, balanceDelta)
}

func (ts *txStore) GetPlan(ctx context.Context, id schedule.PlanID) (*schedule.SubscriptionPlan, error) {
	return ts.parent.getPlan(ctx, ts.tx, id)
}

func (ts *txStore) RecordSubscription(ctx context.Context, sub schedule.StudentSubscription) error {
	return ts.parent.recordSubscription(ctx, ts.tx, sub)
}

// =============================================================================
// HELPERS
// =============================================================================

func scanTarget(groupID, studentID sql.NullString) schedule.Target {
	if groupID.Valid {
		return schedule.GroupTarget(schedule.GroupID(groupID.String))
	}
	return schedule.StudentTarget(schedule.StudentID(studentID.String))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func scanDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decimal %q: %w", s.String, err)
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
