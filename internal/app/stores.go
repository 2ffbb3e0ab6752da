package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/muriarq/mailgate/internal/config"
	"github.com/muriarq/mailgate/internal/database"
	"github.com/muriarq/mailgate/internal/repository"
)

// storeConnectTimeout は起動時のストア接続確認のタイムアウト。
const storeConnectTimeout = 10 * time.Second

// stores は選択されたバックエンドのリポジトリ一式を保持する。
type stores struct {
	accounts repository.AccountRepository
	audit    repository.AuditRepository
	sessions repository.ChatSessionRepository
	pinger   repository.Pinger
	close    func() error
}

// openStores はSTORE_BACKENDに応じてPostgreSQLまたはFirestoreに接続し、リポジトリを構築する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		client, err := database.OpenFirestore(ctx, cfg.FirestoreProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore: %w", err)
		}
		slog.Info("firestore client initialized", slog.String("project_id", cfg.FirestoreProjectID))
		return firestoreStores(client), nil

	default:
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, storeConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return postgresStores(db), nil
	}
}

func postgresStores(db *sql.DB) *stores {
	return &stores{
		accounts: repository.NewPostgresAccountRepo(db),
		audit:    repository.NewPostgresAuditRepo(db),
		sessions: repository.NewPostgresChatSessionRepo(db),
		pinger:   db,
		close:    db.Close,
	}
}

func firestoreStores(client *firestore.Client) *stores {
	return &stores{
		accounts: repository.NewFirestoreAccountRepo(client),
		audit:    repository.NewFirestoreAuditRepo(client),
		sessions: repository.NewFirestoreChatSessionRepo(client),
		pinger:   database.NewFirestorePinger(client),
		close:    client.Close,
	}
}
