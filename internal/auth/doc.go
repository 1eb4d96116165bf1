// Package auth предоставляет OAuth2 credential для вызовов YouTube Data API.
//
// Provider хранит единственный токен аккаунта в TokenStore (в БД это строка
// oauth_tokens с id = 'default'), прозрачно обновляет истёкший access token
// и умеет принудительно обновить его после ответа 401.
//
// Для первичной авторизации используются AuthCodeURL и Exchange
// (offline access + prompt=consent, чтобы Google выдал refresh token).
package auth
