package utils

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Envelope 是所有 JSON 接口的统一响应结构。
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// RespondSuccess 发送成功响应 {success:true, data}
func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, Envelope{Success: true, Data: data})
}

// RespondError 发送错误响应 {success:false, error, requestId}
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	env := Envelope{Success: false, Error: message}
	if r != nil {
		env.RequestID = middleware.GetReqID(r.Context())
	}
	RespondJSON(w, status, env)
}
