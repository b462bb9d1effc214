package domain

import "time"

// AuditStatus classifies the outcome recorded by an audit entry.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
	AuditWarning AuditStatus = "warning"
)

// AuditAction names a sensitive operation worth recording. The set is
// closed: unknown actions are rejected before they reach storage so the
// log stays queryable by exact action name.
type AuditAction string

const (
	// Authentication
	ActionLoginSuccess         AuditAction = "LOGIN_SUCCESS"
	ActionLoginFailed          AuditAction = "LOGIN_FAILED"
	ActionLoginLocked          AuditAction = "LOGIN_LOCKED"
	ActionRegister             AuditAction = "REGISTER"
	ActionLogout               AuditAction = "LOGOUT"
	ActionPasswordChange       AuditAction = "PASSWORD_CHANGE"
	ActionPasswordResetRequest AuditAction = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetSuccess AuditAction = "PASSWORD_RESET_SUCCESS"
	ActionTwoFactorEnabled     AuditAction = "2FA_ENABLED"
	ActionTwoFactorDisabled    AuditAction = "2FA_DISABLED"
	ActionTwoFactorVerified    AuditAction = "2FA_VERIFIED"
	ActionTwoFactorFailed      AuditAction = "2FA_FAILED"

	// Administration
	ActionAdminCourseCreate    AuditAction = "ADMIN_COURSE_CREATE"
	ActionAdminCourseUpdate    AuditAction = "ADMIN_COURSE_UPDATE"
	ActionAdminCourseDelete    AuditAction = "ADMIN_COURSE_DELETE"
	ActionAdminCoursePublish   AuditAction = "ADMIN_COURSE_PUBLISH"
	ActionAdminCourseUnpublish AuditAction = "ADMIN_COURSE_UNPUBLISH"
	ActionAdminLessonAdd       AuditAction = "ADMIN_LESSON_ADD"
	ActionAdminLessonDelete    AuditAction = "ADMIN_LESSON_DELETE"
	ActionAdminUserUpdate      AuditAction = "ADMIN_USER_UPDATE"
	ActionAdminUserDelete      AuditAction = "ADMIN_USER_DELETE"
	ActionAdminUserRoleChange  AuditAction = "ADMIN_USER_ROLE_CHANGE"

	// Session lifecycle
	ActionSessionCreate    AuditAction = "SESSION_CREATE"
	ActionSessionRevoke    AuditAction = "SESSION_REVOKE"
	ActionSessionRevokeAll AuditAction = "SESSION_REVOKE_ALL"

	// Data handling
	ActionDataExport AuditAction = "DATA_EXPORT"
	ActionDataDelete AuditAction = "DATA_DELETE"

	// Security signals
	ActionSuspiciousActivity AuditAction = "SUSPICIOUS_ACTIVITY"
	ActionRateLimitHit       AuditAction = "RATE_LIMIT_HIT"
	ActionInvalidToken       AuditAction = "INVALID_TOKEN"
	ActionUnauthorizedAccess AuditAction = "UNAUTHORIZED_ACCESS"
	ActionCSRFViolation      AuditAction = "CSRF_VIOLATION"
)

var knownAuditActions = map[AuditAction]struct{}{
	ActionLoginSuccess: {}, ActionLoginFailed: {}, ActionLoginLocked: {},
	ActionRegister: {}, ActionLogout: {},
	ActionPasswordChange: {}, ActionPasswordResetRequest: {}, ActionPasswordResetSuccess: {},
	ActionTwoFactorEnabled: {}, ActionTwoFactorDisabled: {}, ActionTwoFactorVerified: {}, ActionTwoFactorFailed: {},
	ActionAdminCourseCreate: {}, ActionAdminCourseUpdate: {}, ActionAdminCourseDelete: {},
	ActionAdminCoursePublish: {}, ActionAdminCourseUnpublish: {},
	ActionAdminLessonAdd: {}, ActionAdminLessonDelete: {},
	ActionAdminUserUpdate: {}, ActionAdminUserDelete: {}, ActionAdminUserRoleChange: {},
	ActionSessionCreate: {}, ActionSessionRevoke: {}, ActionSessionRevokeAll: {},
	ActionDataExport: {}, ActionDataDelete: {},
	ActionSuspiciousActivity: {}, ActionRateLimitHit: {}, ActionInvalidToken: {},
	ActionUnauthorizedAccess: {}, ActionCSRFViolation: {},
}

// Valid reports whether the action belongs to the closed action set.
func (a AuditAction) Valid() bool {
	_, ok := knownAuditActions[a]
	return ok
}

// AuditEntry is one immutable record in the security audit log.
type AuditEntry struct {
	ID          string
	ActorID     *string
	ActorEmail  string
	ActorRole   string
	Action      AuditAction
	Description string
	Metadata    map[string]any
	IP          string
	UserAgent   string
	Endpoint    string
	HTTPMethod  string
	Status      AuditStatus
	Timestamp   time.Time
}

// AuditFilter narrows audit log queries for operator review.
type AuditFilter struct {
	ActorID *string
	Action  *AuditAction
	Status  *AuditStatus
	IP      *string
	From    *time.Time
	To      *time.Time
}

// ActionCount pairs an action with its occurrence count inside a window.
type ActionCount struct {
	Action AuditAction
	Count  int64
}

// IPFailureCount pairs a source IP with its failed-login count inside a window.
type IPFailureCount struct {
	IP    string
	Count int64
}

// SecurityOverview aggregates failed-login activity computed at read
// time over the audit log, never maintained as separate counters.
type SecurityOverview struct {
	FailedLogins24h  int64
	FailedLogins7d   int64
	LockedAccounts7d int64
	SuspiciousIPs    []IPFailureCount
	ActionBreakdown  []ActionCount
	GeneratedAt      time.Time
}
