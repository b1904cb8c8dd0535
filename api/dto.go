/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers
  run them through the package-level validate instance before touching
  domain logic, so malformed input never reaches the engine.

WIRE FORMATS:
  - Dates:   "2006-01-02"
  - Times:   "HH:MM" (minute granularity)
  - Money:   decimal strings ("25.00"), never floats
  - Weekdays: integers 0 (Monday) through 6 (Sunday)

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classtrack/lesson-engine/schedule"
)

var validate = validator.New()

// =============================================================================
// SCHEDULES
// =============================================================================

// CreateScheduleRequest is the request to create a recurring schedule.
// Exactly one of group_id and student_id must be set.
type CreateScheduleRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	GroupID   string `json:"group_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	Days      []int  `json:"days" validate:"required,min=1,dive,gte=0,lte=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Rate      string `json:"rate" validate:"required"`
	Recurring *bool  `json:"recurring,omitempty"`
}

// ScheduleDTO represents a schedule in API responses.
type ScheduleDTO struct {
	ID        string `json:"id"`
	TeacherID string `json:"teacher_id"`
	GroupID   string `json:"group_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	Days      []int  `json:"days"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Rate      string `json:"rate"`
	Recurring bool   `json:"recurring"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toScheduleDTO(s schedule.Schedule) ScheduleDTO {
	return ScheduleDTO{
		ID:        string(s.ID),
		TeacherID: string(s.TeacherID),
		GroupID:   string(s.Target.GroupID),
		StudentID: string(s.Target.StudentID),
		Days:      s.Days.Ints(),
		StartTime: s.StartTime.String(),
		EndTime:   s.EndTime.String(),
		Rate:      s.Rate.String(),
		Recurring: s.Recurring,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// GenerateSessionsRequest asks for session expansion over a date range.
type GenerateSessionsRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id,omitempty"`
	TeacherID  string `json:"teacher_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	StudentID  string `json:"student_id,omitempty"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Payment    string `json:"payment"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func toSessionDTO(s schedule.Session) SessionDTO {
	return SessionDTO{
		ID:         string(s.ID),
		ScheduleID: string(s.ScheduleID),
		TeacherID:  string(s.TeacherID),
		GroupID:    string(s.Target.GroupID),
		StudentID:  string(s.Target.StudentID),
		Date:       s.Date.Format("2006-01-02"),
		StartTime:  s.StartTime.String(),
		EndTime:    s.EndTime.String(),
		Payment:    s.Payment.String(),
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

func toSessionDTOs(sessions []schedule.Session) []SessionDTO {
	out := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		out[i] = toSessionDTO(s)
	}
	return out
}

// TransitionRequest moves a session to a new lifecycle status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=SCHEDULED IN_PROGRESS COMPLETED CANCELLED"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// MarkAttendanceRequest records a student as present in a session.
type MarkAttendanceRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// SetAttendanceStatusRequest corrects an attendance record.
type SetAttendanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=present absent late"`
}

// ScanRequest carries a QR scan payload.
type ScanRequest struct {
	Payload string `json:"payload" validate:"required"`
}

// AttendanceDTO represents an attendance record in API responses.
type AttendanceDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	IsValid   bool   `json:"is_valid"`
	ScannedAt string `json:"scanned_at,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toAttendanceDTO(a schedule.AttendanceLog) AttendanceDTO {
	dto := AttendanceDTO{
		ID:        string(a.ID),
		StudentID: string(a.StudentID),
		SessionID: string(a.SessionID),
		Status:    string(a.Status),
		IsValid:   a.IsValid,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.ScannedAt != nil {
		dto.ScannedAt = a.ScannedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ROSTER
// =============================================================================

// CreateTeacherRequest creates or updates a teacher.
type CreateTeacherRequest struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string   `json:"phone,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
}

// TeacherDTO represents a teacher in API responses.
type TeacherDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

func toTeacherDTO(t schedule.Teacher) TeacherDTO {
	return TeacherDTO{
		ID:              string(t.ID),
		Name:            t.Name,
		Email:           t.Email,
		Phone:           t.Phone,
		Specializations: t.Specializations,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
}

// CreateStudentRequest creates or updates a student's roster fields.
// Balance fields are absent on purpose: they move only through the
// billing endpoints.
type CreateStudentRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
	Level string `json:"level,omitempty"`
}

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
	Level               string `json:"level,omitempty"`
	QRCode              string `json:"qr_code"`
	LessonsRemaining    int    `json:"lessons_remaining"`
	SubscriptionBalance string `json:"subscription_balance"`
	CreatedAt           string `json:"created_at,omitempty"`
}

func toStudentDTO(s schedule.Student) StudentDTO {
	return StudentDTO{
		ID:                  string(s.ID),
		Name:                s.Name,
		Email:               s.Email,
		Phone:               s.Phone,
		Level:               s.Level,
		QRCode:              s.QRCode,
		LessonsRemaining:    s.LessonsRemaining,
		SubscriptionBalance: s.SubscriptionBalance.String(),
		CreatedAt:           s.CreatedAt.Format(time.RFC3339),
	}
}

// CreateGroupRequest creates or updates a group.
type CreateGroupRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Level       string `json:"level,omitempty"`
	TeacherID   string `json:"teacher_id,omitempty"`
	MaxCapacity int    `json:"max_capacity,omitempty" validate:"gte=0"`
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=active inactive full archived"`
}

// GroupDTO represents a group in API responses.
type GroupDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Level       string `json:"level,omitempty"`
	TeacherID   string `json:"teacher_id,omitempty"`
	MaxCapacity int    `json:"max_capacity"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toGroupDTO(g schedule.Group) GroupDTO {
	return GroupDTO{
		ID:          string(g.ID),
		Name:        g.Name,
		Description: g.Description,
		Language:    g.Language,
		Level:       g.Level,
		TeacherID:   string(g.TeacherID),
		MaxCapacity: g.MaxCapacity,
		Status:      string(g.Status),
		CreatedAt:   g.CreatedAt.Format(time.RFC3339),
	}
}

// AddGroupMemberRequest enrolls a student in a group.
type AddGroupMemberRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// =============================================================================
// SUBSCRIPTIONS AND BILLING
// =============================================================================

// CreatePlanRequest creates or updates a subscription plan.
type CreatePlanRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name" validate:"required"`
	Lessons int    `json:"lessons" validate:"required,gt=0"`
	Price   string `json:"price" validate:"required"`
}

// PlanDTO represents a subscription plan in API responses.
type PlanDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Lessons int    `json:"lessons"`
	Price   string `json:"price"`
}

func toPlanDTO(p schedule.SubscriptionPlan) PlanDTO {
	return PlanDTO{
		ID:      string(p.ID),
		Name:    p.Name,
		Lessons: p.Lessons,
		Price:   p.Price.String(),
	}
}

// SubscribeRequest credits a plan onto a student's balance.
type SubscribeRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// SubscriptionDTO is one plan purchase in a student's history.
type SubscriptionDTO struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	PlanID    string `json:"plan_id"`
	Lessons   int    `json:"lessons"`
	Price     string `json:"price"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toSubscriptionDTO(s schedule.StudentSubscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:        s.ID,
		StudentID: string(s.StudentID),
		PlanID:    string(s.PlanID),
		Lessons:   s.Lessons,
		Price:     s.Price.String(),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PERFORMANCE
// =============================================================================

// RecordPerformanceRequest appends a scored feedback row.
type RecordPerformanceRequest struct {
	SessionID       string  `json:"session_id" validate:"required"`
	VocabularyScore *string `json:"vocabulary_score,omitempty"`
	GrammarScore    *string `json:"grammar_score,omitempty"`
	SpeakingScore   *string `json:"speaking_score,omitempty"`
	ListeningScore  *string `json:"listening_score,omitempty"`
	Comments        string  `json:"comments,omitempty"`
}

// PerformanceDTO represents a performance row in API responses.
type PerformanceDTO struct {
	ID              string  `json:"id"`
	StudentID       string  `json:"student_id"`
	SessionID       string  `json:"session_id"`
	Date            string  `json:"date"`
	VocabularyScore *string `json:"vocabulary_score,omitempty"`
	GrammarScore    *string `json:"grammar_score,omitempty"`
	SpeakingScore   *string `json:"speaking_score,omitempty"`
	ListeningScore  *string `json:"listening_score,omitempty"`
	Comments        string  `json:"comments,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// =============================================================================
// SHARED
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// GenerationResultDTO reports a batch generation/activation pass.
type GenerationResultDTO struct {
	Created   int `json:"created"`
	Activated int `json:"activated"`
}
