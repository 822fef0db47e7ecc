// Package httperr maps chat error kinds onto HTTP responses.
package httperr

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/pkg/utils"
)

// Client-facing messages. Causes stay in the logs.
const (
	MsgGenerationFailed = "Maaf, saat ini kami tidak dapat membuat jawaban. Silakan coba lagi."
	MsgStorageFailed    = "Layanan riwayat percakapan sedang tidak tersedia."
	MsgInternal         = "internal server error"
)

// Classify returns the status code and the client-safe message for err.
func Classify(err error) (int, string) {
	var validation *chat.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, validation.Message
	}
	var auth *chat.AuthenticationError
	if errors.As(err, &auth) {
		return http.StatusUnauthorized, auth.Reason
	}
	if chat.IsGeneration(err) {
		return http.StatusInternalServerError, MsgGenerationFailed
	}
	if chat.IsPersistence(err) {
		return http.StatusInternalServerError, MsgStorageFailed
	}
	return http.StatusInternalServerError, MsgInternal
}

// Respond writes the error envelope for err and logs server-side failures.
func Respond(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, message := Classify(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logging.FromContext(r.Context(), logger).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	utils.RespondError(w, r, status, message)
}
