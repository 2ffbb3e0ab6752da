// Package auth はパスワード認証、失敗回数によるロックアウト、チャットのログインセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/muriarq/mailgate/internal/metrics"
	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/repository"
)

// ErrMissingCredential はアカウントIDまたはパスワードが空の場合に返される。
var ErrMissingCredential = errors.New("account ID and password are required")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	MaxAttempts   int // ロックまでの連続失敗回数
	SessionMaxAge int // チャットセッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	sessions repository.ChatSessionRepository
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	accounts repository.AccountRepository,
	sessions repository.ChatSessionRepository,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 3
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// Authenticate はアカウントIDとパスワードを検証し、失敗回数とロック状態を更新する。
// 結果の種別（不明・無効・不一致・ロック・成功）はAuthResultで返し、
// エラーはデータストア障害（*model.TransientError）または入力不備の場合のみ返す。
func (s *Service) Authenticate(ctx context.Context, accountID, password string) (model.AuthResult, error) {
	if accountID == "" || password == "" {
		return model.AuthResult{}, ErrMissingCredential
	}

	result, err := s.authenticate(ctx, accountID, password)
	if err != nil {
		return model.AuthResult{}, err
	}
	s.metrics.RecordAuthOutcome(string(result.Outcome))
	return result, nil
}

func (s *Service) authenticate(ctx context.Context, accountID, password string) (model.AuthResult, error) {
	result := model.AuthResult{AccountID: accountID, MaxAttempts: s.config.MaxAttempts}

	// 1. アカウントを取得。存在しない場合は状態を変更せず、監査も記録しない
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return model.AuthResult{}, model.NewTransientError("find account", err)
	}
	if account == nil {
		result.Outcome = model.AuthUnknownAccount
		return result, nil
	}

	// 2. 無効化済みのアカウントはパスワードの正否に関わらず拒否する
	if !account.Active {
		result.Outcome = model.AuthAccountDisabled
		result.FailedAttempts = account.FailedAttempts
		return result, nil
	}

	// 3. ダイジェストを比較
	if !digestMatches(password, account.CredentialDigest) {
		return s.recordFailure(ctx, result)
	}

	// 4. 一致: 失敗回数のリセットと最終アクセス日時の更新を1回の更新で行う
	ok, err := s.accounts.RecordSuccess(ctx, accountID, s.now())
	if err != nil {
		return model.AuthResult{}, model.NewTransientError("record successful login", err)
	}
	if !ok {
		// 読み出し後に並行する失敗でロックされた
		result.Outcome = model.AuthAccountDisabled
		return result, nil
	}

	slog.Info("authentication succeeded", slog.String("account_id", accountID))
	result.Outcome = model.AuthSuccess
	return result, nil
}

// recordFailure は失敗回数を原子的に加算し、閾値到達時はロックする。
func (s *Service) recordFailure(ctx context.Context, result model.AuthResult) (model.AuthResult, error) {
	attempts, active, ok, err := s.accounts.RecordFailure(ctx, result.AccountID, s.config.MaxAttempts)
	if err != nil {
		return model.AuthResult{}, model.NewTransientError("record failed login", err)
	}
	if !ok {
		result.Outcome = model.AuthAccountDisabled
		return result, nil
	}

	result.FailedAttempts = attempts
	if !active {
		slog.Warn("account locked after repeated failures",
			slog.String("account_id", result.AccountID),
			slog.Int("failed_attempts", attempts),
		)
		result.Outcome = model.AuthAccountLocked
		return result, nil
	}

	slog.Info("authentication failed",
		slog.String("account_id", result.AccountID),
		slog.Int("failed_attempts", attempts),
	)
	result.Outcome = model.AuthInvalidCredential
	return result, nil
}

// Login はチャットからのログインを処理する。
// 認証に成功した場合はチャットとアカウントを紐付けるセッションを作成する。
func (s *Service) Login(ctx context.Context, chatID, accountID, password string) (model.AuthResult, error) {
	result, err := s.Authenticate(ctx, accountID, password)
	if err != nil {
		return model.AuthResult{}, err
	}
	if result.Outcome != model.AuthSuccess {
		return result, nil
	}

	now := s.now()
	session := &model.ChatSession{
		ChatID:    chatID,
		AccountID: accountID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return model.AuthResult{}, model.NewTransientError("save chat session", err)
	}

	slog.Info("chat session created",
		slog.String("chat_id", chatID),
		slog.String("account_id", accountID),
	)
	return result, nil
}

// CurrentAccount はチャットにログイン中のアカウントIDを返す。
// セッションがない、期限切れ、またはアカウントが無効化された場合は空文字を返す。
func (s *Service) CurrentAccount(ctx context.Context, chatID string) (string, error) {
	session, err := s.sessions.FindByChatID(ctx, chatID)
	if err != nil {
		return "", model.NewTransientError("find chat session", err)
	}
	if session == nil || session.Expired(s.now()) {
		return "", nil
	}

	account, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		return "", model.NewTransientError("find account", err)
	}
	if account == nil || !account.Active {
		// ログイン後にロックまたは削除されたアカウントのセッションは破棄する
		if err := s.sessions.DeleteByChatID(ctx, chatID); err != nil {
			slog.Warn("failed to drop stale chat session",
				slog.String("chat_id", chatID),
				slog.String("error", err.Error()),
			)
		}
		return "", nil
	}

	return account.ID, nil
}

// Logout はチャットのセッションを破棄する。
func (s *Service) Logout(ctx context.Context, chatID string) error {
	if err := s.sessions.DeleteByChatID(ctx, chatID); err != nil {
		return model.NewTransientError("delete chat session", err)
	}

	slog.Info("chat session closed", slog.String("chat_id", chatID))
	return nil
}
