// pairing.go — HTTP handlers сопряжения устройств.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/godocflow/internal/api/errors"
	"github.com/bigkaa/godocflow/internal/api/middleware"
)

// pairingCreateResponse — ответ на создание кода сопряжения.
type pairingCreateResponse struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expiresAt"`
}

// pairingClaimResponse — ответ на погашение кода сопряжения.
type pairingClaimResponse struct {
	OwnerID string `json:"ownerId"`
}

// CreatePairingCode обрабатывает POST /api/v1/pairing.
// Генерирует одноразовый код для сопряжения второго устройства.
func (h *APIHandler) CreatePairingCode(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	if requester == "" {
		apierrors.Unauthorized(w, "Создание кода сопряжения требует аутентификации")
		return
	}

	session, err := h.pairing.Create(requester)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pairingCreateResponse{
		Code:      session.Code,
		ExpiresAt: formatTime(session.ExpiresAt),
	})
}

// ClaimPairingCode обрабатывает POST /api/v1/pairing/{code}/claim.
// Одноразово погашает код и возвращает subject владельца.
func (h *APIHandler) ClaimPairingCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		apierrors.ValidationError(w, "Не указан код сопряжения")
		return
	}

	session, err := h.pairing.Claim(code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pairingClaimResponse{
		OwnerID: session.OwnerID,
	})
}
