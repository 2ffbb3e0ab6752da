// Package ratelimit はチャットごとのコマンドレート制限を提供する。
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Kind はレート制限の種類。
type Kind string

const (
	// KindCommand はコマンド全般のレート制限。
	KindCommand Kind = "command"
	// KindLogin は/loginのレート制限。パスワード総当たり対策としてコマンド全般より厳しくする。
	KindLogin Kind = "login"
)

// Config はレート制限の設定を保持する。
type Config struct {
	CommandRate     rate.Limit    // コマンド全般のレート（req/sec）
	CommandBurst    int           // コマンド全般のバーストサイズ
	LoginRate       rate.Limit    // /loginのレート（req/sec）
	LoginBurst      int           // /loginのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は1分あたりの上限からConfigを生成する。
// 要件: コマンド全般 commandsPerMin/min/chat、ログイン loginsPerMin/min/chat
func PerMinute(commandsPerMin, loginsPerMin int) Config {
	return Config{
		CommandRate:     rate.Limit(float64(commandsPerMin) / 60.0),
		CommandBurst:    commandsPerMin,
		LoginRate:       rate.Limit(float64(loginsPerMin) / 60.0),
		LoginBurst:      loginsPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// chatLimiter はチャットごとのレートリミッターとアクセス時刻を保持する。
type chatLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてチャットごとのリミッターを管理する。
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*chatLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*chatLimiter),
	}
}

func (s *limiterSet) allow(chatID string, now time.Time) bool {
	s.mu.Lock()
	cl, exists := s.limiters[chatID]
	if !exists {
		cl = &chatLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[chatID] = cl
	}
	cl.lastAccess = now
	s.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

func (s *limiterSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, chatID)
		}
	}
}

// Limiter はチャットごとのレート制限を管理する。
// コマンド全般と/loginの2種類を独立に提供する。
type Limiter struct {
	config  Config
	command *limiterSet
	login   *limiterSet
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLimiter は新しいLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewLimiter(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	l := &Limiter{
		config:  config,
		command: newLimiterSet(config.CommandRate, config.CommandBurst),
		login:   newLimiterSet(config.LoginRate, config.LoginBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow は指定チャットが指定種類のコマンドを今実行してよいかを返す。
func (l *Limiter) Allow(kind Kind, chatID string) bool {
	switch kind {
	case KindLogin:
		return l.login.allow(chatID, l.now())
	default:
		return l.command.allow(chatID, l.now())
	}
}

// Count は指定種類で現在管理されているエントリ数を返す。
// テストおよびメトリクス用。
func (l *Limiter) Count(kind Kind) int {
	if kind == KindLogin {
		return l.login.count()
	}
	return l.command.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (l *Limiter) cleanup() {
	ttl := l.config.CleanupInterval * 2
	now := l.now()

	l.command.evict(now, ttl)
	l.login.evict(now, ttl)
}
