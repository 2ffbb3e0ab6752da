package security

import "github.com/microcosm-cc/bluemonday"

// ReplySanitizer はユーザーが入力したテキストをHTMLパースモードの返信に埋め込めるようにする。
// タグはすべて除去し、残りのテキストはエスケープする。
type ReplySanitizer struct {
	policy *bluemonday.Policy
}

// NewReplySanitizer はReplySanitizerを生成する。
// bluemondayのポリシーはスレッドセーフなため、1インスタンスを共有してよい。
func NewReplySanitizer() *ReplySanitizer {
	return &ReplySanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はテキストからタグを除去し、HTMLの特殊文字をエスケープして返す。
func (s *ReplySanitizer) Text(raw string) string {
	return s.policy.Sanitize(raw)
}
