package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
)

func TestAuditRecordFillsDefaults(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	svc.Record(context.Background(), domain.AuditEntry{
		Action: domain.ActionLoginSuccess,
		IP:     "203.0.113.10",
	})

	entry := repo.lastEntry()
	if entry == nil {
		t.Fatal("expected an entry to be stored")
	}
	if entry.ID == "" {
		t.Fatal("expected a generated ID")
	}
	if entry.Timestamp.IsZero() {
		t.Fatal("expected a timestamp to be set")
	}
	if entry.Status != domain.AuditSuccess {
		t.Fatalf("expected default success status, got %s", entry.Status)
	}
}

func TestAuditRecordSanitizesMetadata(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	svc.Record(context.Background(), domain.AuditEntry{
		Action: domain.ActionPasswordChange,
		Metadata: map[string]any{
			"password":        "hunter2",
			"currentPassword": "hunter2",
			"newPassword":     "hunter3",
			"twoFactorSecret": "JBSWY3DP",
			"token":           "abc123",
			"attemptsLeft":    2,
		},
	})

	entry := repo.lastEntry()
	if entry == nil {
		t.Fatal("expected an entry to be stored")
	}
	for _, key := range []string{"password", "currentPassword", "newPassword", "twoFactorSecret", "token"} {
		if _, present := entry.Metadata[key]; present {
			t.Fatalf("expected %q to be stripped from metadata", key)
		}
	}
	if entry.Metadata["attemptsLeft"] != 2 {
		t.Fatalf("expected benign metadata to survive, got %v", entry.Metadata)
	}
}

func TestAuditRecordTruncatesUserAgent(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	svc.Record(context.Background(), domain.AuditEntry{
		Action:    domain.ActionLoginSuccess,
		UserAgent: strings.Repeat("x", 1000),
	})

	entry := repo.lastEntry()
	if entry == nil {
		t.Fatal("expected an entry to be stored")
	}
	if len(entry.UserAgent) != maxUserAgentLength {
		t.Fatalf("expected user agent truncated to %d, got %d", maxUserAgentLength, len(entry.UserAgent))
	}
}

func TestAuditRecordDropsUnknownAction(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	svc.Record(context.Background(), domain.AuditEntry{Action: domain.AuditAction("MADE_UP")})

	if repo.lastEntry() != nil {
		t.Fatal("expected the entry to be dropped")
	}
}

func TestAuditRecordSwallowsStorageErrors(t *testing.T) {
	repo := newStubAuditRepo()
	repo.insertErr = errors.New("storage down")
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	// Must not panic or surface the error.
	svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginSuccess})
}

func TestAuditQueryClampsLimit(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	for i := 0; i < 60; i++ {
		svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginFailed})
	}

	for _, limit := range []int{0, -5, 500} {
		entries, total, err := svc.Query(context.Background(), domain.AuditFilter{}, limit, 0)
		if err != nil {
			t.Fatalf("expected query to succeed with limit %d, got %v", limit, err)
		}
		if total != 60 {
			t.Fatalf("expected total 60, got %d", total)
		}
		if len(entries) != 50 {
			t.Fatalf("expected limit clamped to 50, got %d entries", len(entries))
		}
	}
}

func TestAuditQueryRejectsUnknownAction(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	action := domain.AuditAction("MADE_UP")
	_, _, err := svc.Query(context.Background(), domain.AuditFilter{Action: &action}, 50, 0)
	if !errors.Is(err, ErrUnknownAuditAction) {
		t.Fatalf("expected ErrUnknownAuditAction, got %v", err)
	}
}

func TestAuditQueryFiltersByAction(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginSuccess})
	svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginFailed})
	svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginFailed})

	action := domain.ActionLoginFailed
	entries, total, err := svc.Query(context.Background(), domain.AuditFilter{Action: &action}, 50, 0)
	if err != nil {
		t.Fatalf("expected query to succeed, got %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("expected 2 failed-login entries, got total=%d len=%d", total, len(entries))
	}
}

func TestAuditSecurityOverview(t *testing.T) {
	repo := newStubAuditRepo()
	svc := NewAuditService(newTestConfig(), repo, zap.NewNop())

	now := time.Now().UTC()
	record := func(action domain.AuditAction, ip string, at time.Time) {
		svc.Record(context.Background(), domain.AuditEntry{
			Action:    action,
			IP:        ip,
			Timestamp: at,
		})
	}

	// 12 recent failures from one address crosses the suspicious threshold.
	for i := 0; i < 12; i++ {
		record(domain.ActionLoginFailed, "198.51.100.7", now.Add(-time.Hour))
	}
	record(domain.ActionLoginFailed, "203.0.113.10", now.Add(-time.Hour))
	// Older than 24h but inside the week.
	record(domain.ActionLoginFailed, "203.0.113.10", now.Add(-3*24*time.Hour))
	record(domain.ActionLoginLocked, "198.51.100.7", now.Add(-2*24*time.Hour))
	// Outside the week entirely.
	record(domain.ActionLoginFailed, "203.0.113.10", now.Add(-10*24*time.Hour))

	overview, err := svc.SecurityOverview(context.Background())
	if err != nil {
		t.Fatalf("expected overview to succeed, got %v", err)
	}

	if overview.FailedLogins24h != 13 {
		t.Fatalf("expected 13 failures in 24h, got %d", overview.FailedLogins24h)
	}
	if overview.FailedLogins7d != 14 {
		t.Fatalf("expected 14 failures in 7d, got %d", overview.FailedLogins7d)
	}
	if overview.LockedAccounts7d != 1 {
		t.Fatalf("expected 1 lockout in 7d, got %d", overview.LockedAccounts7d)
	}
	if len(overview.SuspiciousIPs) != 1 || overview.SuspiciousIPs[0].IP != "198.51.100.7" {
		t.Fatalf("expected one suspicious IP, got %+v", overview.SuspiciousIPs)
	}
	if overview.SuspiciousIPs[0].Count != 12 {
		t.Fatalf("expected 12 counted failures, got %d", overview.SuspiciousIPs[0].Count)
	}
	if len(overview.ActionBreakdown) == 0 {
		t.Fatal("expected a non-empty action breakdown")
	}
}

func TestAuditPurgeExpired(t *testing.T) {
	repo := newStubAuditRepo()
	cfg := newTestConfig()
	cfg.Audit.RetentionDays = 30
	svc := NewAuditService(cfg, repo, zap.NewNop())

	now := time.Now().UTC()
	svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginSuccess, Timestamp: now.Add(-40 * 24 * time.Hour)})
	svc.Record(context.Background(), domain.AuditEntry{Action: domain.ActionLoginSuccess, Timestamp: now.Add(-10 * 24 * time.Hour)})

	purged, err := svc.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("expected purge to succeed, got %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}

	_, total, err := svc.Query(context.Background(), domain.AuditFilter{}, 50, 0)
	if err != nil {
		t.Fatalf("expected query to succeed, got %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", total)
	}
}
