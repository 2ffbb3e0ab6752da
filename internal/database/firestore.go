package database

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// pingCollection は疎通確認で読み出すコレクション。
const pingCollection = "usuarios"

// OpenFirestore はFirestoreクライアントを生成する。
// credentialsFileが存在する場合はサービスアカウント鍵として使用し、
// 存在しない場合はApplication Default Credentialsにフォールバックする。
func OpenFirestore(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(credentialsFile))
		}
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

// FirestorePinger はFirestoreクライアントに疎通確認を提供する。
// 1件だけドキュメントを読み出し、RPCが成功すれば疎通ありとみなす。
type FirestorePinger struct {
	client *firestore.Client
}

// NewFirestorePinger はFirestorePingerを生成する。
func NewFirestorePinger(client *firestore.Client) *FirestorePinger {
	return &FirestorePinger{client: client}
}

// PingContext はFirestoreへの疎通を確認する。
func (p *FirestorePinger) PingContext(ctx context.Context) error {
	iter := p.client.Collection(pingCollection).Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("failed to ping firestore: %w", err)
	}
	return nil
}
