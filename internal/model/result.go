package model

// AuthOutcome は認証結果の種別。
type AuthOutcome string

const (
	// AuthSuccess は認証成功。失敗回数はリセットされる。
	AuthSuccess AuthOutcome = "success"
	// AuthUnknownAccount は該当アカウントが存在しない。
	AuthUnknownAccount AuthOutcome = "unknown_account"
	// AuthAccountDisabled はアカウントが無効化済み。
	AuthAccountDisabled AuthOutcome = "account_disabled"
	// AuthInvalidCredential はパスワード不一致（閾値未満）。
	AuthInvalidCredential AuthOutcome = "invalid_credential"
	// AuthAccountLocked は今回の失敗で閾値に達しロックされた。
	AuthAccountLocked AuthOutcome = "account_locked"
)

// AuthResult は認証サービスの結果。
// FailedAttemptsとMaxAttemptsは AuthInvalidCredential / AuthAccountLocked の場合のみ意味を持つ。
type AuthResult struct {
	Outcome        AuthOutcome
	AccountID      string
	FailedAttempts int
	MaxAttempts    int
}

// AccessOutcome はアクセス判定結果の種別。
type AccessOutcome string

const (
	// AccessRejectedFormat は組織ドメイン外のため判定前に拒否した。監査は記録しない。
	AccessRejectedFormat AccessOutcome = "rejected_format"
	// AccessDenied は有効なアカウントに割り当てられていない。
	AccessDenied AccessOutcome = "denied"
	// AccessGranted は1件以上の有効なアカウントに割り当てられている。
	AccessGranted AccessOutcome = "granted"
)

// AccessResult は認可サービスの結果。
type AccessResult struct {
	Outcome  AccessOutcome
	Resource string   // 小文字に正規化済みのメールアドレス
	Accounts []string // AccessGranted の場合のみ。ID昇順
}
