package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/muriarq/mailgate/internal/access"
	"github.com/muriarq/mailgate/internal/audit"
	"github.com/muriarq/mailgate/internal/auth"
	"github.com/muriarq/mailgate/internal/bot"
	"github.com/muriarq/mailgate/internal/config"
	"github.com/muriarq/mailgate/internal/database"
	"github.com/muriarq/mailgate/internal/handler"
	"github.com/muriarq/mailgate/internal/logger"
	"github.com/muriarq/mailgate/internal/metrics"
	"github.com/muriarq/mailgate/internal/ratelimit"
	"github.com/muriarq/mailgate/internal/security"
	"github.com/muriarq/mailgate/internal/telegram"
	"github.com/muriarq/mailgate/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = os.Getenv("PORT")
		}
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSetWebhook:
		return runSetWebhook(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はWebhookサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストア接続
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. Telegramクライアント
	tg := telegram.NewClient(
		newTelegramHTTPClient(cfg),
		slog.Default(),
		collector,
		cfg.TelegramAPIURL,
		cfg.TelegramToken,
	)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(st.accounts, st.sessions, collector, auth.ServiceConfig{
		MaxAttempts:   cfg.MaxFailedAttempts,
		SessionMaxAge: cfg.SessionMaxAge,
	})
	recorder := audit.NewRecorder(st.audit, collector)
	accessService := access.NewService(st.accounts, recorder, collector, cfg.AllowedEmailDomain)

	limiter := ratelimit.NewLimiter(ratelimit.PerMinute(cfg.RateLimitCommands, cfg.RateLimitLogin))
	defer limiter.Stop()

	dispatcher := bot.NewDispatcher(
		authService,
		accessService,
		tg,
		limiter,
		security.NewReplySanitizer(),
		collector,
		slog.Default(),
	)

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Updates:       dispatcher,
		HealthChecker: st.pinger,
		Gatherer:      registry,
		TelegramToken: cfg.TelegramToken,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        slog.Default(),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("webhook server starting",
			slog.String("addr", server.Addr),
			slog.String("allowed_domain", cfg.AllowedEmailDomain),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down webhook server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("webhook server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ストアに接続し、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer st.close()

	cleanupJob := cleanup.NewCleanupJob(st.sessions, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// Firestoreはスキーマを持たないため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend == config.BackendFirestore {
		slog.Info("firestore backend has no schema migrations; nothing to do")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runSetWebhook はBASE_URL/<token> をTelegramにWebhookとして登録する。
// BASE_URLは公開ホストのhttps URLでなければならない。
func runSetWebhook(cfg *config.Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required for setwebhook")
	}

	guard := security.NewSSRFGuard()
	if err := guard.ValidateWebhookURL(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid BASE_URL: %w", err)
	}

	tg := telegram.NewClient(
		newTelegramHTTPClient(cfg),
		slog.Default(),
		metrics.NopCollector{},
		cfg.TelegramAPIURL,
		cfg.TelegramToken,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TelegramTimeout)
	defer cancel()

	if err := tg.SetWebhook(ctx, cfg.BaseURL+"/"+cfg.TelegramToken, cfg.WebhookSecret); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	slog.Info("webhook registered",
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("secret_token", cfg.WebhookSecret != ""),
	)
	return nil
}

// newTelegramHTTPClient はBot API呼び出し用のHTTPクライアントを生成する。
// 公開エンドポイントにはSSRF防止付きクライアントを使い、
// 自前でホストしたBot APIサーバー（プライベートアドレス）の場合のみ通常のクライアントを使う。
func newTelegramHTTPClient(cfg *config.Config) *http.Client {
	guard := security.NewSSRFGuard()
	if err := guard.ValidateURL(cfg.TelegramAPIURL); err != nil {
		slog.Warn("telegram api url is not public; outbound guard disabled",
			slog.String("reason", err.Error()),
		)
		return &http.Client{Timeout: cfg.TelegramTimeout}
	}
	return guard.NewSafeClient(cfg.TelegramTimeout)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URL形式でない接続文字列はすべて伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
