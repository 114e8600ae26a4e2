package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// corsHandler 放行所有来源、方法与请求头，并允许携带凭证。
var corsHandler = cors.Handler(cors.Options{
	AllowOriginFunc:      func(*http.Request, string) bool { return true },
	AllowedMethods:       []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	AllowedHeaders:       []string{"*"},
	AllowCredentials:     true,
	MaxAge:               600,
	OptionsSuccessStatus: http.StatusNoContent,
})

// CORS 跨域中间件，预检请求直接返回 204。
func CORS(next http.Handler) http.Handler {
	return corsHandler(next)
}
