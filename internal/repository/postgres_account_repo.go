package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/shipman/internal/model"
)

// PostgresLinkedAccountRepo はPostgreSQLを使用したセラーアカウント連携リポジトリ。
type PostgresLinkedAccountRepo struct {
	db *sql.DB
}

// NewPostgresLinkedAccountRepo はPostgresLinkedAccountRepoを生成する。
func NewPostgresLinkedAccountRepo(db *sql.DB) *PostgresLinkedAccountRepo {
	return &PostgresLinkedAccountRepo{db: db}
}

// Upsert は(user_id, ml_user_id)をキーに連携レコードを原子的にUPSERTする。
// UNIQUE(user_id, ml_user_id)制約を利用したINSERT ON CONFLICTで実装し、
// 読み取り後書き込みのレースを排除する。既存行のidとcreated_atは維持され、
// トークン・メタデータ・updated_atは全て上書きされる。
func (r *PostgresLinkedAccountRepo) Upsert(ctx context.Context, account *model.LinkedAccount) (*model.LinkedAccount, error) {
	now := time.Now().UTC()

	stored := &model.LinkedAccount{
		UserID:       account.UserID,
		MLUserID:     account.MLUserID,
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		ExpiresAt:    account.ExpiresAt,
		SiteID:       account.SiteID,
		Nickname:     account.Nickname,
		UpdatedAt:    now,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO marketplace_accounts
		     (id, user_id, ml_user_id, access_token, refresh_token, expires_at, site_id, nickname, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (user_id, ml_user_id) DO UPDATE SET
		     access_token  = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     expires_at    = EXCLUDED.expires_at,
		     site_id       = EXCLUDED.site_id,
		     nickname      = EXCLUDED.nickname,
		     updated_at    = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		uuid.New().String(), stored.UserID, stored.MLUserID,
		stored.AccessToken, stored.RefreshToken, stored.ExpiresAt,
		stored.SiteID, stored.Nickname, now,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert marketplace account: %w", err)
	}

	return stored, nil
}

// FindByUserAndMLUser はユーザーIDとMercado LivreユーザーIDで連携を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresLinkedAccountRepo) FindByUserAndMLUser(ctx context.Context, userID, mlUserID string) (*model.LinkedAccount, error) {
	account := &model.LinkedAccount{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, ml_user_id, access_token, refresh_token, expires_at, site_id, nickname, created_at, updated_at
		 FROM marketplace_accounts
		 WHERE user_id = $1 AND ml_user_id = $2`,
		userID, mlUserID,
	).Scan(
		&account.ID, &account.UserID, &account.MLUserID,
		&account.AccessToken, &account.RefreshToken, &account.ExpiresAt,
		&account.SiteID, &account.Nickname,
		&account.CreatedAt, &account.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find marketplace account: %w", err)
	}

	return account, nil
}

// ListByUserID はユーザーの連携アカウント一覧をupdated_at降順で返す。
func (r *PostgresLinkedAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*model.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, ml_user_id, access_token, refresh_token, expires_at, site_id, nickname, created_at, updated_at
		 FROM marketplace_accounts
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list marketplace accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.LinkedAccount
	for rows.Next() {
		account := &model.LinkedAccount{}
		if err := rows.Scan(
			&account.ID, &account.UserID, &account.MLUserID,
			&account.AccessToken, &account.RefreshToken, &account.ExpiresAt,
			&account.SiteID, &account.Nickname,
			&account.CreatedAt, &account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan marketplace account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate marketplace accounts: %w", err)
	}

	return accounts, nil
}

// compile-time interface check
var _ LinkedAccountRepository = (*PostgresLinkedAccountRepo)(nil)
