// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/taskboard/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "auth-token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionUserContextKey はリクエストコンテキストにセッションユーザーを格納するためのキー。
var sessionUserContextKey = contextKey("session_user")

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
// 不正・期限切れのトークンはエラーではなくfalseで表す。
type SessionVerifier interface {
	Verify(token string) (*model.SessionUser, bool)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// 未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからトークンを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 2. トークンを検証
			user, ok := verifier.Verify(cookie.Value)
			if !ok || user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 3. 認証済みユーザーをコンテキストに注入
			setLoggedUserID(r.Context(), user.ID)
			ctx := ContextWithSessionUser(r.Context(), *user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionUserFromContext はリクエストコンテキストからセッションユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionUserFromContext(ctx context.Context) (model.SessionUser, bool) {
	user, ok := ctx.Value(sessionUserContextKey).(model.SessionUser)
	if !ok || user.ID == "" {
		return model.SessionUser{}, false
	}
	return user, true
}

// ContextWithSessionUser はコンテキストにセッションユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSessionUser(ctx context.Context, user model.SessionUser) context.Context {
	return context.WithValue(ctx, sessionUserContextKey, user)
}
