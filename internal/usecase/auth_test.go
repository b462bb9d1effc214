package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	uuid "github.com/google/uuid"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/security"
)

const testPassword = "Str0ng!Passw0rd"

func testUser(t *testing.T, mutate ...func(*domain.User)) domain.User {
	t.Helper()

	now := time.Now().UTC().Add(-time.Hour)
	user := domain.User{
		ID:                uuid.NewString(),
		Name:              "Awa Diop",
		Email:             "awa.diop@example.com",
		PasswordHash:      hashTestPassword(t, testPassword),
		Country:           "SN",
		Role:              domain.RoleUser,
		IsActive:          true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, fn := range mutate {
		fn(&user)
	}
	return user
}

func testMeta() RequestMeta {
	return RequestMeta{
		IP:        "203.0.113.10",
		UserAgent: "test-agent/1.0",
		Endpoint:  "/api/v1/auth/login",
		Method:    "POST",
	}
}

func TestLoginSuccess(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}

	if result.Token == "" {
		t.Fatal("expected a signed token")
	}
	if result.User.PasswordHash != "" {
		t.Fatal("expected password hash to be stripped from the result")
	}
	if env.sessions.count(user.ID) != 1 {
		t.Fatalf("expected one session, got %d", env.sessions.count(user.ID))
	}

	entries := env.auditLog.entriesByAction(domain.ActionLoginSuccess)
	if len(entries) != 1 {
		t.Fatalf("expected one LOGIN_SUCCESS audit entry, got %d", len(entries))
	}
	if entries[0].IP != "203.0.113.10" {
		t.Fatalf("unexpected audit IP: %s", entries[0].IP)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newAuthTestEnv(t)

	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: testPassword,
		Meta:     testMeta(),
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	entries := env.auditLog.entriesByAction(domain.ActionLoginFailed)
	if len(entries) != 1 {
		t.Fatalf("expected one LOGIN_FAILED audit entry, got %d", len(entries))
	}
	if entries[0].ActorID != nil {
		t.Fatal("expected no actor for unknown email")
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	user := testUser(t, func(u *domain.User) { u.IsActive = false })
	env := newAuthTestEnv(t, user)

	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLoginWrongPasswordCountsDown(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "wrong-password",
		Meta:     testMeta(),
	})

	var credsErr *CredentialsError
	if !errors.As(err, &credsErr) {
		t.Fatalf("expected CredentialsError, got %v", err)
	}
	if credsErr.AttemptsLeft != 4 {
		t.Fatalf("expected 4 attempts left, got %d", credsErr.AttemptsLeft)
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("expected the error to match ErrInvalidCredentials")
	}

	entries := env.auditLog.entriesByAction(domain.ActionLoginFailed)
	if len(entries) != 1 {
		t.Fatalf("expected one LOGIN_FAILED audit entry, got %d", len(entries))
	}
	if got := entries[0].Metadata["attemptsLeft"]; got != 4 {
		t.Fatalf("expected attemptsLeft metadata 4, got %v", got)
	}
}

func TestLoginLocksAfterThreshold(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = env.auth.Login(context.Background(), LoginInput{
			Email:    user.Email,
			Password: "wrong-password",
			Meta:     testMeta(),
		})
	}

	var lockedErr *AccountLockedError
	if !errors.As(lastErr, &lockedErr) {
		t.Fatalf("expected AccountLockedError on the fifth failure, got %v", lastErr)
	}
	if !lockedErr.Until.After(time.Now()) {
		t.Fatal("expected lock deadline in the future")
	}

	if len(env.events.accountLocks) != 1 {
		t.Fatalf("expected one account locked event, got %d", len(env.events.accountLocks))
	}
	if env.events.accountLocks[0].Attempts != 5 {
		t.Fatalf("expected 5 attempts in event, got %d", env.events.accountLocks[0].Attempts)
	}

	// Correct credentials make no difference while the lock holds.
	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	entries := env.auditLog.entriesByAction(domain.ActionLoginLocked)
	if len(entries) != 1 {
		t.Fatalf("expected one LOGIN_LOCKED audit entry, got %d", len(entries))
	}
}

func TestLoginExpiredLockResetsCounter(t *testing.T) {
	past := time.Now().UTC().Add(-time.Minute)
	user := testUser(t, func(u *domain.User) {
		u.LoginAttempts = 5
		u.LockUntil = &past
	})
	env := newAuthTestEnv(t, user)

	_, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "wrong-password",
		Meta:     testMeta(),
	})

	var credsErr *CredentialsError
	if !errors.As(err, &credsErr) {
		t.Fatalf("expected CredentialsError after lock expiry, got %v", err)
	}
	if credsErr.AttemptsLeft != 4 {
		t.Fatalf("expected counter reset to 1 (4 left), got %d left", credsErr.AttemptsLeft)
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	for i := 0; i < 3; i++ {
		_, _ = env.auth.Login(context.Background(), LoginInput{
			Email:    user.Email,
			Password: "wrong-password",
			Meta:     testMeta(),
		})
	}

	if _, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	}); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}

	stored, err := env.users.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if stored.LoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", stored.LoginAttempts)
	}
	if stored.LastLoginIP == nil || *stored.LastLoginIP != "203.0.113.10" {
		t.Fatal("expected last login IP to be recorded")
	}
}

func TestLoginRequiresTwoFactorCode(t *testing.T) {
	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}
	user := testUser(t, func(u *domain.User) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = &secret
	})
	env := newAuthTestEnv(t, user)

	_, err = env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}

	// A password failure must not reveal 2FA status: missing code is only
	// reported after the password check passed.
	if env.sessions.count(user.ID) != 0 {
		t.Fatal("expected no session before the second factor")
	}
}

func TestLoginWithTOTPCode(t *testing.T) {
	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}
	user := testUser(t, func(u *domain.User) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = &secret
	})
	env := newAuthTestEnv(t, user)

	code, err := security.GenerateTOTP(secret, time.Now())
	if err != nil {
		t.Fatalf("failed to generate code: %v", err)
	}

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:         user.Email,
		Password:      testPassword,
		TwoFactorCode: code,
		Meta:          testMeta(),
	})
	if err != nil {
		t.Fatalf("expected login with TOTP to succeed, got %v", err)
	}
	if result.UsedBackupCode {
		t.Fatal("expected TOTP path, not backup code")
	}
}

func TestLoginWithBackupCodeIsSingleUse(t *testing.T) {
	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}
	user := testUser(t, func(u *domain.User) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = &secret
	})
	env := newAuthTestEnv(t, user)

	backupCode := "a1b2c3d4"
	if err := env.users.ReplaceBackupCodes(context.Background(), user.ID, []string{security.HashToken(backupCode)}, time.Now()); err != nil {
		t.Fatalf("failed to seed backup code: %v", err)
	}

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:         user.Email,
		Password:      testPassword,
		TwoFactorCode: backupCode,
		Meta:          testMeta(),
	})
	if err != nil {
		t.Fatalf("expected backup code login to succeed, got %v", err)
	}
	if !result.UsedBackupCode {
		t.Fatal("expected the result to flag backup code usage")
	}

	_, err = env.auth.Login(context.Background(), LoginInput{
		Email:         user.Email,
		Password:      testPassword,
		TwoFactorCode: backupCode,
		Meta:          testMeta(),
	})
	if !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected reuse of a backup code to fail, got %v", err)
	}
}

func TestSessionCapEvictsOldest(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	base := time.Now().UTC()
	for i := 0; i < 6; i++ {
		if _, _, err := env.auth.StartSession(context.Background(), user, base.Add(time.Duration(i)*time.Second), testMeta()); err != nil {
			t.Fatalf("failed to start session %d: %v", i, err)
		}
	}

	if got := env.sessions.count(user.ID); got != 5 {
		t.Fatalf("expected session cap of 5, got %d", got)
	}

	sessions, err := env.sessions.ListByUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	for _, session := range sessions {
		if session.CreatedAt.Equal(base) {
			t.Fatal("expected the oldest session to be evicted")
		}
	}
}

func TestValidateToken(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	validated, claims, err := env.auth.ValidateToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("expected token to validate, got %v", err)
	}
	if validated.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, validated.ID)
	}
	if claims.SessionID != result.SessionID {
		t.Fatalf("expected session %s, got %s", result.SessionID, claims.SessionID)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	env := newAuthTestEnv(t)

	_, _, err := env.auth.ValidateToken(context.Background(), "not-a-token")
	if !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestValidateTokenAfterPasswordChange(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// A later password change must invalidate tokens issued before it.
	if err := env.users.UpdatePassword(context.Background(), user.ID, hashTestPassword(t, "N3w!Passw0rd"), time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("failed to rotate password: %v", err)
	}

	_, _, err = env.auth.ValidateToken(context.Background(), result.Token)
	if !errors.Is(err, ErrStaleToken) {
		t.Fatalf("expected ErrStaleToken, got %v", err)
	}
}

func TestValidateTokenAfterSessionRevocation(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := env.sessions.Delete(context.Background(), user.ID, result.SessionID); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}

	_, _, err = env.auth.ValidateToken(context.Background(), result.Token)
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestLogoutRemovesSession(t *testing.T) {
	user := testUser(t)
	env := newAuthTestEnv(t, user)

	result, err := env.auth.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: testPassword,
		Meta:     testMeta(),
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.auth.Logout(context.Background(), user, result.SessionID, testMeta()); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if env.sessions.count(user.ID) != 0 {
		t.Fatal("expected session to be removed on logout")
	}

	// Logging out again is still a success.
	if err := env.auth.Logout(context.Background(), user, result.SessionID, testMeta()); err != nil {
		t.Fatalf("repeat logout failed: %v", err)
	}
}
