package handler

import (
	"net/http"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// noBody はリクエストボディを持たないエンドポイントの型パラメータ。
type noBody struct{}

// successResponse は削除系エンドポイントのレスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

var deleted = successResponse{Success: true}

// endpoint は認証が必要なエンドポイントの共通処理を実装する。
//
//  1. コンテキストからセッションユーザーを取得（なければ401）
//  2. Reqがボディを持つ場合はJSONをデコードして検証（失敗は400）
//  3. fnを呼び出し、エラーはhandleServiceErrorで変換
//  4. 成功時はfnの戻り値を200のJSONで返す
func endpoint[Req any](fn func(r *http.Request, user model.SessionUser, req *Req) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.SessionUserFromContext(r.Context())
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}

		var req Req
		if _, empty := any(&req).(*noBody); !empty {
			if apiErr := decodeAndValidate(r, &req); apiErr != nil {
				middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
				return
			}
		}

		resp, err := fn(r, user, &req)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, resp)
	}
}
