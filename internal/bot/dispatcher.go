// Package bot はチャットのコマンドを認証・認可サービスに振り分け、返信文を組み立てる。
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/muriarq/mailgate/internal/metrics"
	"github.com/muriarq/mailgate/internal/model"
	"github.com/muriarq/mailgate/internal/ratelimit"
	"github.com/muriarq/mailgate/internal/telegram"
)

// 対応コマンド
const (
	cmdStart  = "/start"
	cmdLogin  = "/login"
	cmdCorreo = "/correo"
	cmdLogout = "/logout"
)

// Authenticator はログインとチャットセッションを扱うインターフェース。
type Authenticator interface {
	Login(ctx context.Context, chatID, accountID, password string) (model.AuthResult, error)
	CurrentAccount(ctx context.Context, chatID string) (string, error)
	Logout(ctx context.Context, chatID string) error
}

// AccessResolver はメールアドレスのアクセス判定を行うインターフェース。
type AccessResolver interface {
	ResolveAccess(ctx context.Context, caller, resourceID string) (model.AccessResult, error)
	Domain() string
}

// Sender はチャットに返信を送るインターフェース。
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
}

// RateLimiter はチャットごとのレート制限のインターフェース。
type RateLimiter interface {
	Allow(kind ratelimit.Kind, chatID string) bool
}

// TextSanitizer は利用者の入力をHTML返信に埋め込める形に変換する。
type TextSanitizer interface {
	Text(raw string) string
}

// Dispatcher はTelegramのUpdateを受け取り、コマンドを処理して返信する。
// Dispatcher自体は状態を持たず、複数のUpdateを並行に処理してよい。
type Dispatcher struct {
	auth      Authenticator
	access    AccessResolver
	sender    Sender
	limiter   RateLimiter
	sanitizer TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	auth Authenticator,
	access AccessResolver,
	sender Sender,
	limiter RateLimiter,
	sanitizer TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Dispatcher {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Dispatcher{
		auth:      auth,
		access:    access,
		sender:    sender,
		limiter:   limiter,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
	}
}

// HandleUpdate は1件のUpdateを処理する。
// テキストメッセージ以外と未対応のコマンドは無視する。
// 返すエラーは返信の送信失敗のみで、コマンド処理中の障害は利用者向けの固定文で返信する。
func (d *Dispatcher) HandleUpdate(ctx context.Context, update telegram.Update) error {
	msg := update.Message
	if msg == nil {
		return nil
	}

	args := strings.Fields(msg.Text)
	if len(args) == 0 {
		return nil
	}

	command := parseCommand(args[0])
	switch command {
	case cmdStart, cmdLogin, cmdCorreo, cmdLogout:
	default:
		return nil
	}

	d.metrics.RecordCommand(command)
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if !d.allow(command, chatID) {
		d.metrics.RecordRateLimited(command)
		d.logger.Warn("rate limit exceeded",
			slog.String("chat_id", chatID),
			slog.String("command", command),
		)
		return d.reply(ctx, msg, replyRateLimited)
	}

	var text string
	switch command {
	case cmdStart:
		text = replyWelcome
	case cmdLogin:
		text = d.handleLogin(ctx, chatID, args)
	case cmdCorreo:
		text = d.handleCorreo(ctx, chatID, args)
	case cmdLogout:
		text = d.handleLogout(ctx, chatID)
	}

	return d.reply(ctx, msg, text)
}

// allow はコマンド全般と/login固有のレート制限を判定する。
func (d *Dispatcher) allow(command, chatID string) bool {
	if d.limiter == nil {
		return true
	}
	if !d.limiter.Allow(ratelimit.KindCommand, chatID) {
		return false
	}
	if command == cmdLogin {
		return d.limiter.Allow(ratelimit.KindLogin, chatID)
	}
	return true
}

// handleLogin は "/login usuario contraseña" を処理する。
func (d *Dispatcher) handleLogin(ctx context.Context, chatID string, args []string) string {
	if len(args) != 3 {
		return replyLoginUsage
	}

	result, err := d.auth.Login(ctx, chatID, args[1], args[2])
	if err != nil {
		d.logFailure("login", chatID, err)
		return replyLoginInternalErr
	}

	switch result.Outcome {
	case model.AuthUnknownAccount:
		return replyUnknownAccount
	case model.AuthAccountDisabled:
		return replyAccountDisabled
	case model.AuthAccountLocked:
		return replyAccountLocked
	case model.AuthInvalidCredential:
		return fmt.Sprintf(replyInvalidPassword, result.FailedAttempts, result.MaxAttempts)
	case model.AuthSuccess:
		return fmt.Sprintf(replyLoginSucceeded, d.sanitizer.Text(d.access.Domain()))
	default:
		return replyLoginInternalErr
	}
}

// handleCorreo は "/correo nombre@dominio" を処理する。ログイン済みのチャットのみ受け付ける。
func (d *Dispatcher) handleCorreo(ctx context.Context, chatID string, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf(replyCorreoUsage, d.sanitizer.Text(d.access.Domain()))
	}

	caller, err := d.auth.CurrentAccount(ctx, chatID)
	if err != nil {
		d.logFailure("correo", chatID, err)
		return replyCorreoInternalErr
	}
	if caller == "" {
		return replyLoginRequired
	}

	result, err := d.access.ResolveAccess(ctx, caller, args[1])
	if err != nil {
		d.logFailure("correo", chatID, err)
		return replyCorreoInternalErr
	}

	switch result.Outcome {
	case model.AccessRejectedFormat:
		return fmt.Sprintf(replyDomainOnly, d.sanitizer.Text(d.access.Domain()))
	case model.AccessDenied:
		return replyNotAssigned
	case model.AccessGranted:
		return fmt.Sprintf(replySearching, d.sanitizer.Text(result.Resource))
	default:
		return replyCorreoInternalErr
	}
}

// handleLogout はチャットのセッションを破棄する。
func (d *Dispatcher) handleLogout(ctx context.Context, chatID string) string {
	if err := d.auth.Logout(ctx, chatID); err != nil {
		d.logFailure("logout", chatID, err)
		return replyLogoutErr
	}
	return replyLoggedOut
}

func (d *Dispatcher) reply(ctx context.Context, msg *telegram.Message, text string) error {
	if err := d.sender.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) logFailure(command, chatID string, err error) {
	d.logger.Error("command failed",
		slog.String("command", command),
		slog.String("chat_id", chatID),
		slog.Bool("transient", model.IsTransient(err)),
		slog.String("error", err.Error()),
	)
}

// parseCommand は先頭トークンからコマンド名を取り出す。
// "/Login@MuriarqBot" は "/login" になる。コマンドでない場合は空文字を返す。
func parseCommand(token string) string {
	if !strings.HasPrefix(token, "/") {
		return ""
	}
	if i := strings.Index(token, "@"); i >= 0 {
		token = token[:i]
	}
	return strings.ToLower(token)
}
