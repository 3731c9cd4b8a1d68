package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name, created_at FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	const insertUser = `
		INSERT INTO users (display_name)
		VALUES ($1)
		ON CONFLICT (display_name) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name, created_at
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name).Scan(&user.ID, &user.DisplayName, &user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT id, display_name, created_at FROM users WHERE id=$1`, userID).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// SaveWorkspace upserts the state blob and bumps its version.
func (s *PostgresStore) SaveWorkspace(ctx context.Context, userID string, state []byte) (WorkspaceRecord, error) {
	if !json.Valid(state) {
		return WorkspaceRecord{}, fmt.Errorf("save workspace: state is not valid json")
	}
	const upsert = `
		INSERT INTO workspaces (user_id, state, version, updated_at)
		VALUES ($1, $2::jsonb, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state, version = workspaces.version + 1, updated_at = NOW()
		RETURNING user_id, state, version, updated_at
	`
	var rec WorkspaceRecord
	var raw []byte
	err := s.db.QueryRowContext(ctx, upsert, userID, string(state)).Scan(&rec.UserID, &raw, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return WorkspaceRecord{}, fmt.Errorf("save workspace: %w", err)
	}
	rec.State = raw
	return rec, nil
}

func (s *PostgresStore) LoadWorkspace(ctx context.Context, userID string) (WorkspaceRecord, error) {
	var rec WorkspaceRecord
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, state, version, updated_at
		FROM workspaces
		WHERE user_id = $1
	`, userID).Scan(&rec.UserID, &raw, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkspaceRecord{}, ErrNotFound
	}
	if err != nil {
		return WorkspaceRecord{}, fmt.Errorf("load workspace: %w", err)
	}
	rec.State = raw
	return rec, nil
}

func (s *PostgresStore) InsertImage(ctx context.Context, img ImageRecord) (ImageRecord, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO images (user_id, locator, content_type, size_bytes, width, height)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, img.UserID, img.Locator, img.ContentType, img.SizeBytes, img.Width, img.Height).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("insert image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) ListImages(ctx context.Context, userID string) ([]ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, locator, content_type, size_bytes, width, height, created_at
		FROM images
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	items := make([]ImageRecord, 0)
	for rows.Next() {
		var item ImageRecord
		if err := rows.Scan(&item.ID, &item.UserID, &item.Locator, &item.ContentType, &item.SizeBytes, &item.Width, &item.Height, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return items, nil
}

// ImageOwner returns the user that uploaded the image behind locator.
func (s *PostgresStore) ImageOwner(ctx context.Context, locator string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM images WHERE locator = $1`, locator).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("image owner: %w", err)
	}
	return userID, nil
}
