package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest はパスワードのダイジェスト（SHA-256の16進小文字表現）を返す。
// 既存の認証情報ストアと互換性を保つため、ソルトやストレッチングは行わない。
func Digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// digestMatches はパスワードのダイジェストが保存済みのダイジェストと完全一致するかを返す。
// 比較は定数時間で行う。
func digestMatches(password, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(password)), []byte(stored)) == 1
}
