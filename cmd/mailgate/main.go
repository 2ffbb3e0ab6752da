// Command mailgate はTelegramのチャットから組織メールアドレスへのアクセスを判定するBotを起動する。
//
// サブコマンド: serve（デフォルト）, worker, migrate, healthcheck, setwebhook
package main

import (
	"fmt"
	"os"

	"github.com/muriarq/mailgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mailgate: %v\n", err)
		os.Exit(1)
	}
}
