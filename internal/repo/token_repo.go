package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

// DefaultTokenID — id единственной строки oauth_tokens.
const DefaultTokenID = "default"

// TokenRepo — репозиторий OAuth-токена аккаунта.
type TokenRepo struct {
	pool *pgxpool.Pool
}

// NewTokenRepo создаёт новый TokenRepo.
func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

// LoadToken возвращает сохранённый токен или ErrNotFound.
func (r *TokenRepo) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	query := `
		SELECT access_token, refresh_token, token_type, expiry
		FROM oauth_tokens
		WHERE id = $1
	`
	var access, refresh, tokenType *string
	var expiry *time.Time

	err := r.pool.QueryRow(ctx, query, DefaultTokenID).Scan(&access, &refresh, &tokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  stringValue(access),
		RefreshToken: stringValue(refresh),
		TokenType:    stringValue(tokenType),
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return tok, nil
}

// SaveToken сохраняет токен (upsert).
// Пустой refresh token не затирает сохранённый.
func (r *TokenRepo) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	query := `
		INSERT INTO oauth_tokens (id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET access_token  = EXCLUDED.access_token,
		    refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
		    token_type    = EXCLUDED.token_type,
		    expiry        = EXCLUDED.expiry,
		    updated_at    = now()
	`
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}

	_, err := r.pool.Exec(ctx, query,
		DefaultTokenID,
		nullString(tok.AccessToken),
		nullString(tok.RefreshToken),
		nullString(tok.TokenType),
		expiry,
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
