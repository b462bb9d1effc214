package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tchelo1688/brvm-academy-iam/internal/core/domain"
	"github.com/Tchelo1688/brvm-academy-iam/internal/core/port"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/config"
	"github.com/Tchelo1688/brvm-academy-iam/internal/infra/security"
	"github.com/Tchelo1688/brvm-academy-iam/internal/repository"
)

// createTestKeyProvider creates a temporary RSA key pair and key provider for tests
func createTestKeyProvider(t *testing.T) security.KeyProvider {
	t.Helper()

	tmpDir := t.TempDir()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privateKeyPath := filepath.Join(tmpDir, "v1.pem")
	privateKeyPEM := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	privateKeyFile, err := os.Create(privateKeyPath)
	if err != nil {
		t.Fatalf("failed to create private key file: %v", err)
	}
	if err := pem.Encode(privateKeyFile, privateKeyPEM); err != nil {
		t.Fatalf("failed to encode private key: %v", err)
	}
	privateKeyFile.Close()

	publicKeyPath := filepath.Join(tmpDir, "public.pem")
	publicKeyPEM := &pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&privateKey.PublicKey),
	}
	publicKeyFile, err := os.Create(publicKeyPath)
	if err != nil {
		t.Fatalf("failed to create public key file: %v", err)
	}
	if err := pem.Encode(publicKeyFile, publicKeyPEM); err != nil {
		t.Fatalf("failed to encode public key: %v", err)
	}
	publicKeyFile.Close()

	keyProvider, err := security.NewDevKeyProvider(tmpDir)
	if err != nil {
		t.Fatalf("failed to create key provider: %v", err)
	}

	return keyProvider
}

func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name: "brvm-academy-iam",
			Env:  "test",
		},
		Lockout: config.LockoutSettings{
			MaxAttempts:  5,
			LockDuration: 30 * time.Minute,
		},
		Sessions: config.SessionSettings{
			MaxPerUser: 5,
			TTL:        168 * time.Hour,
		},
		JWT: config.JWTSettings{
			AccessTokenTTL: 168 * time.Hour,
		},
		Password: config.PasswordSettings{
			HistoryDepth:  5,
			ResetTokenTTL: time.Hour,
		},
		TwoFactor: config.TwoFactorSettings{
			Issuer: "BRVMAcademy",
		},
		Audit: config.AuditSettings{
			RetentionDays: 90,
		},
	}
}

// stubUserRepo is an in-memory port.UserRepository for exercising usecases.
type stubUserRepo struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	history     map[string][]domain.UserPasswordHistory
	backupCodes map[string][]string
	resets      map[string]domain.PasswordResetRequest
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	repo := &stubUserRepo{
		users:       make(map[string]*domain.User),
		history:     make(map[string][]domain.UserPasswordHistory),
		backupCodes: make(map[string][]string),
		resets:      make(map[string]domain.PasswordResetRequest),
	}
	for i := range users {
		user := users[i]
		repo.users[user.ID] = &user
	}
	return repo
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = &user
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = changedAt
	return nil
}

func (r *stubUserRepo) AddPasswordHistory(_ context.Context, userID string, passwordHash string, setAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[userID] = append(r.history[userID], domain.UserPasswordHistory{
		UserID:       userID,
		PasswordHash: passwordHash,
		SetAt:        setAt,
	})
	return nil
}

func (r *stubUserRepo) TrimPasswordHistory(_ context.Context, userID string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.history[userID]
	if keep <= 0 || len(entries) <= keep {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SetAt.After(entries[j].SetAt) })
	r.history[userID] = entries[:keep]
	return nil
}

func (r *stubUserRepo) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.UserPasswordHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := append([]domain.UserPasswordHistory{}, r.history[userID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].SetAt.After(entries[j].SetAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *stubUserRepo) RecordLoginFailure(_ context.Context, id string, threshold int, lockFor time.Duration, at time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}

	if user.LockUntil != nil && user.LockUntil.Before(at) {
		user.LoginAttempts = 1
		user.LockUntil = nil
	} else {
		user.LoginAttempts++
		if user.LoginAttempts >= threshold {
			deadline := at.Add(lockFor)
			user.LockUntil = &deadline
		}
	}

	var lockUntil *time.Time
	if user.LockUntil != nil {
		deadline := *user.LockUntil
		lockUntil = &deadline
	}
	return user.LoginAttempts, lockUntil, nil
}

func (r *stubUserRepo) ResetLoginState(_ context.Context, id string, at time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLoginAt = &at
	user.LastLoginIP = &ip
	return nil
}

func (r *stubUserRepo) SetPendingTwoFactorSecret(_ context.Context, id string, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.TwoFactorPending = &secret
	return nil
}

func (r *stubUserRepo) ReplaceBackupCodes(_ context.Context, userID string, codeHashes []string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backupCodes[userID] = append([]string{}, codeHashes...)
	return nil
}

func (r *stubUserRepo) EnableTwoFactor(_ context.Context, id string, secret string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = &secret
	user.TwoFactorPending = nil
	return nil
}

func (r *stubUserRepo) DisableTwoFactor(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.TwoFactorPending = nil
	delete(r.backupCodes, id)
	return nil
}

func (r *stubUserRepo) ConsumeBackupCode(_ context.Context, userID string, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := r.backupCodes[userID]
	for i, hash := range codes {
		if hash == codeHash {
			r.backupCodes[userID] = append(codes[:i], codes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *stubUserRepo) SetPasswordReset(_ context.Context, userID string, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	r.resets[userID] = domain.PasswordResetRequest{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (r *stubUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string, at time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, reset := range r.resets {
		if reset.TokenHash == tokenHash && reset.ExpiresAt.After(at) {
			if user, ok := r.users[userID]; ok {
				copied := *user
				return &copied, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) ClearPasswordReset(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.resets, userID)
	return nil
}

var _ port.UserRepository = (*stubUserRepo)(nil)

// stubSessionRepo is an in-memory port.SessionRepository with cap eviction.
type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *stubSessionRepo) Add(_ context.Context, session domain.Session, maxPerUser int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session

	if maxPerUser <= 0 {
		return 0, nil
	}

	owned := make([]domain.Session, 0)
	for _, s := range r.sessions {
		if s.UserID == session.UserID {
			owned = append(owned, s)
		}
	}
	if len(owned) <= maxPerUser {
		return 0, nil
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.Before(owned[j].CreatedAt) })
	evicted := 0
	for _, s := range owned[:len(owned)-maxPerUser] {
		delete(r.sessions, s.ID)
		evicted++
	}
	return evicted, nil
}

func (r *stubSessionRepo) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		copied := session
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := make([]domain.Session, 0)
	for _, s := range r.sessions {
		if s.UserID == userID {
			owned = append(owned, s)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	return owned, nil
}

func (r *stubSessionRepo) Delete(_ context.Context, userID string, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.UserID != userID {
		return false, nil
	}
	delete(r.sessions, id)
	return true, nil
}

func (r *stubSessionRepo) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *stubSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(before) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *stubSessionRepo) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

var _ port.SessionRepository = (*stubSessionRepo)(nil)

// stubAuditRepo collects inserted entries for assertions.
type stubAuditRepo struct {
	mu        sync.Mutex
	entries   []domain.AuditEntry
	insertErr error
}

func newStubAuditRepo() *stubAuditRepo {
	return &stubAuditRepo{}
}

func (r *stubAuditRepo) Insert(_ context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubAuditRepo) List(_ context.Context, filter domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]domain.AuditEntry, 0)
	for _, entry := range r.entries {
		if filter.Action != nil && entry.Action != *filter.Action {
			continue
		}
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		matched = append(matched, entry)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *stubAuditRepo) CountByActionSince(_ context.Context, action domain.AuditAction, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, entry := range r.entries {
		if entry.Action == action && !entry.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubAuditRepo) FailureIPsSince(_ context.Context, since time.Time, threshold int64, limit int) ([]domain.IPFailureCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, entry := range r.entries {
		if entry.Action == domain.ActionLoginFailed && entry.IP != "" && !entry.Timestamp.Before(since) {
			counts[entry.IP]++
		}
	}
	result := make([]domain.IPFailureCount, 0)
	for ip, count := range counts {
		if count >= threshold {
			result = append(result, domain.IPFailureCount{IP: ip, Count: count})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Count > result[j].Count })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *stubAuditRepo) ActionBreakdownSince(_ context.Context, since time.Time) ([]domain.ActionCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.AuditAction]int64)
	for _, entry := range r.entries {
		if !entry.Timestamp.Before(since) {
			counts[entry.Action]++
		}
	}
	result := make([]domain.ActionCount, 0, len(counts))
	for action, count := range counts {
		result = append(result, domain.ActionCount{Action: action, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Count > result[j].Count })
	return result, nil
}

func (r *stubAuditRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var purged int64
	for _, entry := range r.entries {
		if entry.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, entry)
	}
	r.entries = kept
	return purged, nil
}

func (r *stubAuditRepo) lastEntry() *domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	entry := r.entries[len(r.entries)-1]
	return &entry
}

func (r *stubAuditRepo) entriesByAction(action domain.AuditAction) []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]domain.AuditEntry, 0)
	for _, entry := range r.entries {
		if entry.Action == action {
			matched = append(matched, entry)
		}
	}
	return matched
}

var _ port.AuditRepository = (*stubAuditRepo)(nil)

// stubEventPublisher records published events.
type stubEventPublisher struct {
	mu               sync.Mutex
	registered       []domain.UserRegisteredEvent
	passwordChanges  []domain.PasswordChangedEvent
	accountLocks     []domain.AccountLockedEvent
	sessionRevokes   []domain.SessionRevokedEvent
	twoFactorChanges []domain.TwoFactorChangedEvent
}

func (p *stubEventPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *stubEventPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwordChanges = append(p.passwordChanges, event)
	return nil
}

func (p *stubEventPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountLocks = append(p.accountLocks, event)
	return nil
}

func (p *stubEventPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionRevokes = append(p.sessionRevokes, event)
	return nil
}

func (p *stubEventPublisher) PublishTwoFactorChanged(_ context.Context, event domain.TwoFactorChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twoFactorChanges = append(p.twoFactorChanges, event)
	return nil
}

var _ port.EventPublisher = (*stubEventPublisher)(nil)

type authTestEnv struct {
	cfg      *config.AppConfig
	users    *stubUserRepo
	sessions *stubSessionRepo
	auditLog *stubAuditRepo
	events   *stubEventPublisher
	audit    *AuditService
	auth     *AuthService
}

func newAuthTestEnv(t *testing.T, users ...domain.User) *authTestEnv {
	t.Helper()

	cfg := newTestConfig()
	keyProvider := createTestKeyProvider(t)
	tokenGenerator, err := security.NewTokenGenerator(keyProvider, "v1")
	if err != nil {
		t.Fatalf("failed to create token generator: %v", err)
	}

	userRepo := newStubUserRepo(users...)
	sessionRepo := newStubSessionRepo()
	auditRepo := newStubAuditRepo()
	events := &stubEventPublisher{}

	auditService := NewAuditService(cfg, auditRepo, zap.NewNop())
	authService := NewAuthService(cfg, userRepo, sessionRepo, auditService, events, tokenGenerator, keyProvider, zap.NewNop())

	return &authTestEnv{
		cfg:      cfg,
		users:    userRepo,
		sessions: sessionRepo,
		auditLog: auditRepo,
		events:   events,
		audit:    auditService,
		auth:     authService,
	}
}

func hashTestPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return hash
}
