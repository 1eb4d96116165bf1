package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/shaiso/Bulksub/internal/repo"
)

// ScopeYouTube — scope, необходимый для управления подписками.
const ScopeYouTube = "https://www.googleapis.com/auth/youtube"

// TokenStore — хранилище токена аккаунта.
// LoadToken возвращает repo.ErrNotFound, если токен ещё не сохранён.
type TokenStore interface {
	LoadToken(ctx context.Context) (*oauth2.Token, error)
	SaveToken(ctx context.Context, tok *oauth2.Token) error
}

// Config — конфигурация провайдера.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes — запрашиваемые scopes. Default: [ScopeYouTube].
	Scopes []string

	// Endpoint — OAuth2 endpoint. Default: endpoints.Google.
	Endpoint oauth2.Endpoint

	// HTTPClient — клиент для запросов к token endpoint (опционально).
	HTTPClient *http.Client

	Store  TokenStore
	Logger *slog.Logger
}

// Provider выдаёт и обновляет токен аккаунта.
type Provider struct {
	oauth      *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *slog.Logger

	// refreshMu сериализует обновление токена между воркерами разных runs.
	refreshMu sync.Mutex
}

// New создаёт Provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{ScopeYouTube}
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = endpoints.Google
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		store:      cfg.Store,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// AuthCodeURL возвращает URL страницы согласия Google.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange обменивает authorization code на токен и сохраняет его.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.oauth.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if err := p.persist(ctx, tok); err != nil {
		return nil, err
	}

	p.logger.Info("oauth token stored", "has_refresh_token", tok.RefreshToken != "")
	return tok, nil
}

// Authenticated возвращает true, если сохранён access или refresh token.
func (p *Provider) Authenticated(ctx context.Context) (bool, error) {
	tok, err := p.store.LoadToken(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}
	return tok.AccessToken != "" || tok.RefreshToken != "", nil
}

// Token возвращает действующий токен.
//
// Истёкший токен обновляется через refresh token и сохраняется.
// Если токен не сохранён — ErrUnauthenticated.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	stored, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	if stored.Valid() {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		return nil, ErrUnauthenticated
	}

	return p.refreshLocked(ctx, stored)
}

// Refresh принудительно обновляет access token через refresh token.
//
// Вызывается воркером после ответа 401. Если другой воркер уже обновил
// токен (сохранённый access token отличается от rejected), возвращается
// сохранённый токен без обращения к token endpoint.
func (p *Provider) Refresh(ctx context.Context, rejected *oauth2.Token) (*oauth2.Token, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	stored, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	if rejected != nil && stored.AccessToken != "" &&
		stored.AccessToken != rejected.AccessToken && stored.Valid() {
		return stored, nil
	}

	if stored.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNoRefreshToken)
	}

	return p.refreshLocked(ctx, stored)
}

// --- Helpers ---

// refreshLocked обновляет токен. Вызывается под refreshMu.
func (p *Provider) refreshLocked(ctx context.Context, stored *oauth2.Token) (*oauth2.Token, error) {
	stale := &oauth2.Token{RefreshToken: stored.RefreshToken}

	fresh, err := p.oauth.TokenSource(p.clientContext(ctx), stale).Token()
	if err != nil {
		p.logger.Warn("token refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if err := p.persist(ctx, fresh); err != nil {
		return nil, err
	}

	p.logger.Debug("access token refreshed", "expiry", fresh.Expiry)
	return fresh, nil
}

// persist сохраняет токен, сохраняя прежний refresh token, если сервер его не вернул.
func (p *Provider) persist(ctx context.Context, tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		prev, err := p.store.LoadToken(ctx)
		if err == nil && prev.RefreshToken != "" {
			tok.RefreshToken = prev.RefreshToken
		}
	}
	if err := p.store.SaveToken(ctx, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (p *Provider) load(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.store.LoadToken(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrUnauthenticated
	}
	return tok, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
