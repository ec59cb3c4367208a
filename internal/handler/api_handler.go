package handler

import (
	"net/http"

	"github.com/hitoshi/staffportal/internal/middleware"
)

// PlaceholderAPI は未実装APIの固定メッセージを返すハンドラーを生成する。
func PlaceholderAPI(name string) http.HandlerFunc {
	body := messageResponse{Message: name + " API (to be implemented)"}
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, body)
	}
}
