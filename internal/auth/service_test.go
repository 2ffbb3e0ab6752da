package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/repository"
)

// --- モック定義 ---

// memAccountRepo はミューテックスで原子性を保証するインメモリのアカウントリポジトリ。
// 各Fnフィールドが設定されている場合はそちらを優先する。
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	findByIDFn      func(ctx context.Context, id string) (*model.Account, error)
	recordFailureFn func(ctx context.Context, id string, maxAttempts int) (int, bool, bool, error)
	recordSuccessFn func(ctx context.Context, id string, at time.Time) (bool, error)

	failureCalls int
	successCalls int
}

func newMemAccountRepo(accounts ...*model.Account) *memAccountRepo {
	r := &memAccountRepo{accounts: make(map[string]*model.Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *memAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if r.findByIDFn != nil {
		return r.findByIDFn(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) RecordFailure(ctx context.Context, id string, maxAttempts int) (int, bool, bool, error) {
	if r.recordFailureFn != nil {
		return r.recordFailureFn(ctx, id, maxAttempts)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureCalls++
	a, ok := r.accounts[id]
	if !ok || !a.Active {
		return 0, false, false, nil
	}
	a.FailedAttempts++
	a.Active = a.FailedAttempts < maxAttempts
	return a.FailedAttempts, a.Active, true, nil
}

func (r *memAccountRepo) RecordSuccess(ctx context.Context, id string, at time.Time) (bool, error) {
	if r.recordSuccessFn != nil {
		return r.recordSuccessFn(ctx, id, at)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successCalls++
	a, ok := r.accounts[id]
	if !ok || !a.Active {
		return false, nil
	}
	a.FailedAttempts = 0
	t := at
	a.LastAccessAt = &t
	return true, nil
}

func (r *memAccountRepo) ListActiveByAuthorizedResource(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (r *memAccountRepo) get(id string) model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.accounts[id]
}

type mockChatSessionRepo struct {
	upsertFn         func(ctx context.Context, session *model.ChatSession) error
	findByChatIDFn   func(ctx context.Context, chatID string) (*model.ChatSession, error)
	deleteByChatIDFn func(ctx context.Context, chatID string) error
}

func (m *mockChatSessionRepo) Upsert(ctx context.Context, session *model.ChatSession) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, session)
	}
	return nil
}

func (m *mockChatSessionRepo) FindByChatID(ctx context.Context, chatID string) (*model.ChatSession, error) {
	if m.findByChatIDFn != nil {
		return m.findByChatIDFn(ctx, chatID)
	}
	return nil, nil
}

func (m *mockChatSessionRepo) DeleteByChatID(ctx context.Context, chatID string) error {
	if m.deleteByChatIDFn != nil {
		return m.deleteByChatIDFn(ctx, chatID)
	}
	return nil
}

func (m *mockChatSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockMetrics) RecordAuthOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}
func (m *mockMetrics) RecordAccessOutcome(string)                  {}
func (m *mockMetrics) RecordAuditFailure()                         {}
func (m *mockMetrics) RecordCommand(string)                        {}
func (m *mockMetrics) RecordRateLimited(string)                    {}
func (m *mockMetrics) RecordTelegramStatus(string, int)            {}
func (m *mockMetrics) RecordTelegramLatency(string, time.Duration) {}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*memAccountRepo)(nil)
var _ repository.ChatSessionRepository = (*mockChatSessionRepo)(nil)

// --- ヘルパー ---

func newAlice() *model.Account {
	return &model.Account{ID: "alice", CredentialDigest: Digest("secret"), Active: true}
}

func newTestService(accounts repository.AccountRepository, sessions repository.ChatSessionRepository) *Service {
	if sessions == nil {
		sessions = &mockChatSessionRepo{}
	}
	return NewService(accounts, sessions, nil, ServiceConfig{MaxAttempts: 3, SessionMaxAge: 3600})
}

// --- テスト ---

func TestDigest_IsLowercaseHexSHA256(t *testing.T) {
	// echo -n secret | sha256sum
	want := "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"
	if got := Digest("secret"); got != want {
		t.Errorf("Digest(secret) = %q, want %q", got, want)
	}
}

func TestAuthenticate_ThreeFailuresLockAccount(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo(newAlice())
	svc := newTestService(repo, nil)

	for i := 1; i <= 2; i++ {
		result, err := svc.Authenticate(ctx, "alice", "wrong")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if result.Outcome != model.AuthInvalidCredential {
			t.Fatalf("attempt %d: Outcome = %q, want %q", i, result.Outcome, model.AuthInvalidCredential)
		}
		if result.FailedAttempts != i || result.MaxAttempts != 3 {
			t.Errorf("attempt %d: attempts = %d/%d, want %d/3", i, result.FailedAttempts, result.MaxAttempts, i)
		}
		if got := repo.get("alice").FailedAttempts; got != i {
			t.Errorf("attempt %d: stored FailedAttempts = %d, want %d", i, got, i)
		}
	}

	result, err := svc.Authenticate(ctx, "alice", "wrong")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != model.AuthAccountLocked {
		t.Fatalf("Outcome = %q, want %q", result.Outcome, model.AuthAccountLocked)
	}
	if repo.get("alice").Active {
		t.Error("アカウントが無効化されていません")
	}

	// 4回目は正しいパスワードでも無効
	result, err = svc.Authenticate(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != model.AuthAccountDisabled {
		t.Errorf("Outcome = %q, want %q", result.Outcome, model.AuthAccountDisabled)
	}
	if got := repo.get("alice").FailedAttempts; got != 3 {
		t.Errorf("FailedAttempts = %d, want frozen at 3", got)
	}
}

func TestAuthenticate_Success_ResetsCounterAndAdvancesLastAccess(t *testing.T) {
	ctx := context.Background()
	previous := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := newAlice()
	alice.FailedAttempts = 2
	alice.LastAccessAt = &previous
	repo := newMemAccountRepo(alice)
	svc := newTestService(repo, nil)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	result, err := svc.Authenticate(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != model.AuthSuccess {
		t.Fatalf("Outcome = %q, want %q", result.Outcome, model.AuthSuccess)
	}

	stored := repo.get("alice")
	if stored.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d, want 0", stored.FailedAttempts)
	}
	if stored.LastAccessAt == nil || stored.LastAccessAt.Before(previous) || !stored.LastAccessAt.Equal(now) {
		t.Errorf("LastAccessAt = %v, want %v", stored.LastAccessAt, now)
	}
}

func TestAuthenticate_UnknownAccount_NoMutation(t *testing.T) {
	repo := newMemAccountRepo()
	svc := newTestService(repo, nil)

	result, err := svc.Authenticate(context.Background(), "nobody", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != model.AuthUnknownAccount {
		t.Errorf("Outcome = %q, want %q", result.Outcome, model.AuthUnknownAccount)
	}
	if repo.failureCalls != 0 || repo.successCalls != 0 {
		t.Errorf("store mutated: failures=%d successes=%d", repo.failureCalls, repo.successCalls)
	}
}

func TestAuthenticate_DisabledAccount_NoMutation(t *testing.T) {
	carol := &model.Account{ID: "carol", CredentialDigest: Digest("pw"), Active: false, FailedAttempts: 1}
	repo := newMemAccountRepo(carol)
	svc := newTestService(repo, nil)

	for _, pw := range []string{"pw", "wrong"} {
		result, err := svc.Authenticate(context.Background(), "carol", pw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != model.AuthAccountDisabled {
			t.Errorf("password %q: Outcome = %q, want %q", pw, result.Outcome, model.AuthAccountDisabled)
		}
	}

	stored := repo.get("carol")
	if stored.Active || stored.FailedAttempts != 1 || stored.LastAccessAt != nil {
		t.Errorf("carol mutated: %+v", stored)
	}
	if repo.failureCalls != 0 || repo.successCalls != 0 {
		t.Errorf("store mutated: failures=%d successes=%d", repo.failureCalls, repo.successCalls)
	}
}

func TestAuthenticate_EmptyInput_ReturnsError(t *testing.T) {
	svc := newTestService(newMemAccountRepo(newAlice()), nil)

	if _, err := svc.Authenticate(context.Background(), "", "secret"); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("empty account: err = %v, want ErrMissingCredential", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", ""); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("empty password: err = %v, want ErrMissingCredential", err)
	}
}

// 読み出し後に並行する失敗でロックされた場合は無効として扱う。
func TestAuthenticate_LockedConcurrently_ReturnsDisabled(t *testing.T) {
	repo := newMemAccountRepo(newAlice())
	repo.recordFailureFn = func(_ context.Context, _ string, _ int) (int, bool, bool, error) {
		return 0, false, false, nil
	}
	repo.recordSuccessFn = func(_ context.Context, _ string, _ time.Time) (bool, error) {
		return false, nil
	}
	svc := newTestService(repo, nil)

	for _, pw := range []string{"wrong", "secret"} {
		result, err := svc.Authenticate(context.Background(), "alice", pw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != model.AuthAccountDisabled {
			t.Errorf("password %q: Outcome = %q, want %q", pw, result.Outcome, model.AuthAccountDisabled)
		}
	}
}

func TestAuthenticate_ConcurrentFailures_LockExactlyAtThreshold(t *testing.T) {
	repo := newMemAccountRepo(newAlice())
	svc := newTestService(repo, nil)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := make(map[model.AuthOutcome]int)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Authenticate(context.Background(), "alice", "wrong")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			counts[result.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts[model.AuthAccountLocked] != 1 {
		t.Errorf("locked outcomes = %d, want 1 (counts=%v)", counts[model.AuthAccountLocked], counts)
	}
	if counts[model.AuthInvalidCredential] != 2 {
		t.Errorf("invalid outcomes = %d, want 2 (counts=%v)", counts[model.AuthInvalidCredential], counts)
	}
	if got := repo.get("alice").FailedAttempts; got != 3 {
		t.Errorf("FailedAttempts = %d, want 3", got)
	}
}

func TestAuthenticate_StoreFailures_ReturnTransientError(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name     string
		password string
		setup    func(r *memAccountRepo)
	}{
		{
			name:     "find fails",
			password: "secret",
			setup: func(r *memAccountRepo) {
				r.findByIDFn = func(_ context.Context, _ string) (*model.Account, error) { return nil, storeErr }
			},
		},
		{
			name:     "record failure fails",
			password: "wrong",
			setup: func(r *memAccountRepo) {
				r.recordFailureFn = func(_ context.Context, _ string, _ int) (int, bool, bool, error) {
					return 0, false, false, storeErr
				}
			},
		},
		{
			name:     "record success fails",
			password: "secret",
			setup: func(r *memAccountRepo) {
				r.recordSuccessFn = func(_ context.Context, _ string, _ time.Time) (bool, error) { return false, storeErr }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemAccountRepo(newAlice())
			tt.setup(repo)
			svc := newTestService(repo, nil)

			_, err := svc.Authenticate(context.Background(), "alice", tt.password)
			if !model.IsTransient(err) {
				t.Fatalf("err = %v, want transient error", err)
			}
			if !errors.Is(err, storeErr) {
				t.Errorf("err should wrap store error, got %v", err)
			}
			if got := repo.get("alice"); got.FailedAttempts != 0 || !got.Active {
				t.Errorf("alice mutated on store failure: %+v", got)
			}
		})
	}
}

func TestAuthenticate_RecordsOutcomeMetric(t *testing.T) {
	m := &mockMetrics{}
	svc := NewService(newMemAccountRepo(newAlice()), &mockChatSessionRepo{}, m, ServiceConfig{MaxAttempts: 3})

	svc.Authenticate(context.Background(), "alice", "wrong")
	svc.Authenticate(context.Background(), "alice", "secret")
	svc.Authenticate(context.Background(), "nobody", "x")

	want := []string{"invalid_credential", "success", "unknown_account"}
	if len(m.outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", m.outcomes, want)
	}
	for i := range want {
		if m.outcomes[i] != want[i] {
			t.Errorf("outcomes[%d] = %q, want %q", i, m.outcomes[i], want[i])
		}
	}
}

func TestLogin_Success_CreatesChatSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var saved *model.ChatSession
	sessions := &mockChatSessionRepo{
		upsertFn: func(_ context.Context, session *model.ChatSession) error {
			saved = session
			return nil
		},
	}
	svc := newTestService(newMemAccountRepo(newAlice()), sessions)
	svc.now = func() time.Time { return now }

	result, err := svc.Login(context.Background(), "42", "alice", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != model.AuthSuccess {
		t.Fatalf("Outcome = %q, want %q", result.Outcome, model.AuthSuccess)
	}
	if saved == nil {
		t.Fatal("セッションが作成されていません")
	}
	if saved.ChatID != "42" || saved.AccountID != "alice" {
		t.Errorf("session = %+v", saved)
	}
	if !saved.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", saved.ExpiresAt, now.Add(time.Hour))
	}
}

func TestLogin_Failure_DoesNotCreateSession(t *testing.T) {
	sessions := &mockChatSessionRepo{
		upsertFn: func(_ context.Context, _ *model.ChatSession) error {
			t.Error("Upsert should not be called on failed login")
			return nil
		},
	}
	svc := newTestService(newMemAccountRepo(newAlice()), sessions)

	result, err := svc.Login(context.Background(), "42", "alice", "wrong")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != model.AuthInvalidCredential {
		t.Errorf("Outcome = %q, want %q", result.Outcome, model.AuthInvalidCredential)
	}
}

func TestLogin_SessionStoreFails_ReturnsTransientError(t *testing.T) {
	sessions := &mockChatSessionRepo{
		upsertFn: func(_ context.Context, _ *model.ChatSession) error { return errors.New("timeout") },
	}
	svc := newTestService(newMemAccountRepo(newAlice()), sessions)

	if _, err := svc.Login(context.Background(), "42", "alice", "secret"); !model.IsTransient(err) {
		t.Errorf("err = %v, want transient error", err)
	}
}

func TestCurrentAccount(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	carol := &model.Account{ID: "carol", Active: false}

	tests := []struct {
		name        string
		session     *model.ChatSession
		want        string
		wantDeleted bool
	}{
		{
			name:    "no session",
			session: nil,
			want:    "",
		},
		{
			name:    "live session",
			session: &model.ChatSession{ChatID: "42", AccountID: "alice", ExpiresAt: now.Add(time.Minute)},
			want:    "alice",
		},
		{
			name:    "expired session",
			session: &model.ChatSession{ChatID: "42", AccountID: "alice", ExpiresAt: now},
			want:    "",
		},
		{
			name:        "account locked after login",
			session:     &model.ChatSession{ChatID: "42", AccountID: "carol", ExpiresAt: now.Add(time.Minute)},
			want:        "",
			wantDeleted: true,
		},
		{
			name:        "account removed after login",
			session:     &model.ChatSession{ChatID: "42", AccountID: "ghost", ExpiresAt: now.Add(time.Minute)},
			want:        "",
			wantDeleted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deleted := false
			sessions := &mockChatSessionRepo{
				findByChatIDFn: func(_ context.Context, _ string) (*model.ChatSession, error) {
					return tt.session, nil
				},
				deleteByChatIDFn: func(_ context.Context, _ string) error {
					deleted = true
					return nil
				},
			}
			svc := newTestService(newMemAccountRepo(newAlice(), carol), sessions)
			svc.now = func() time.Time { return now }

			got, err := svc.CurrentAccount(context.Background(), "42")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CurrentAccount = %q, want %q", got, tt.want)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("deleted = %v, want %v", deleted, tt.wantDeleted)
			}
		})
	}
}

func TestCurrentAccount_StoreFails_ReturnsTransientError(t *testing.T) {
	sessions := &mockChatSessionRepo{
		findByChatIDFn: func(_ context.Context, _ string) (*model.ChatSession, error) {
			return nil, errors.New("unavailable")
		},
	}
	svc := newTestService(newMemAccountRepo(), sessions)

	if _, err := svc.CurrentAccount(context.Background(), "42"); !model.IsTransient(err) {
		t.Errorf("err = %v, want transient error", err)
	}
}

func TestLogout(t *testing.T) {
	var deletedChat string
	sessions := &mockChatSessionRepo{
		deleteByChatIDFn: func(_ context.Context, chatID string) error {
			deletedChat = chatID
			return nil
		},
	}
	svc := newTestService(newMemAccountRepo(), sessions)

	if err := svc.Logout(context.Background(), "42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deletedChat != "42" {
		t.Errorf("deleted chat = %q, want %q", deletedChat, "42")
	}

	sessions.deleteByChatIDFn = func(_ context.Context, _ string) error { return errors.New("boom") }
	if err := svc.Logout(context.Background(), "42"); !model.IsTransient(err) {
		t.Errorf("err = %v, want transient error", err)
	}
}
