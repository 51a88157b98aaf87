// handler.go — основной обработчик API.
// Объединяет все доменные обработчики, делегирует запросы в сервисный слой
// и маппит ошибки бизнес-логики в HTTP-ответы единого формата.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/godocflow/internal/api/errors"
	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/service"
	"github.com/bigkaa/godocflow/internal/storage/filestore"
)

// APIHandler — основной обработчик API.
type APIHandler struct {
	health    *HealthHandler
	batches   *service.BatchService
	uploads   *service.UploadService
	aggregate *service.AggregateService
	pairing   *service.PairingService
	store     *filestore.FileStore

	// Лимиты multipart-загрузки
	maxUploadSize     int64
	maxFilesPerUpload int

	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	batches *service.BatchService,
	uploads *service.UploadService,
	aggregate *service.AggregateService,
	pairing *service.PairingService,
	store *filestore.FileStore,
	maxUploadSize int64,
	maxFilesPerUpload int,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:            health,
		batches:           batches,
		uploads:           uploads,
		aggregate:         aggregate,
		pairing:           pairing,
		store:             store,
		maxUploadSize:     maxUploadSize,
		maxFilesPerUpload: maxFilesPerUpload,
		logger:            logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- API-представления доменных моделей ---

// batchResponse — API-представление пакета.
type batchResponse struct {
	ID               string   `json:"id"`
	OwnerID          string   `json:"ownerId"`
	Name             string   `json:"name"`
	Status           string   `json:"status"`
	TotalFileCount   int      `json:"totalFileCount"`
	TotalFileSize    int64    `json:"totalFileSize"`
	Accuracy         *float64 `json:"accuracy"`
	Precision        *float64 `json:"precision"`
	Loss             *float64 `json:"loss"`
	ExtractedContent *string  `json:"extractedContent"`
	CreatedAt        string   `json:"createdAt"`
	UpdatedAt        string   `json:"updatedAt"`

	// Documents заполняется только при запросе с withDocuments
	Documents []documentResponse `json:"documents,omitempty"`
}

// documentResponse — API-представление документа.
// Storage key наружу не отдаётся (внутренняя деталь хранилища).
type documentResponse struct {
	ID               string   `json:"id"`
	BatchID          string   `json:"batchId"`
	FileName         string   `json:"fileName"`
	FileSize         int64    `json:"fileSize"`
	MimeType         string   `json:"mimeType"`
	Status           string   `json:"status"`
	ExtractedContent *string  `json:"extractedContent"`
	Accuracy         *float64 `json:"accuracy"`
	Precision        *float64 `json:"precision"`
	Loss             *float64 `json:"loss"`
	EnhancedText     *string  `json:"enhancedText"`
	TranslatedText   *string  `json:"translatedText"`
	CreatedAt        string   `json:"createdAt"`
	UpdatedAt        string   `json:"updatedAt"`
}

// batchToAPI преобразует доменную модель пакета в API-формат.
func batchToAPI(b *model.Batch) batchResponse {
	return batchResponse{
		ID:               b.ID,
		OwnerID:          b.OwnerID,
		Name:             b.Name,
		Status:           string(b.Status),
		TotalFileCount:   b.TotalFileCount,
		TotalFileSize:    b.TotalFileSize,
		Accuracy:         b.Accuracy,
		Precision:        b.Precision,
		Loss:             b.Loss,
		ExtractedContent: b.ExtractedContent,
		CreatedAt:        formatTime(b.CreatedAt),
		UpdatedAt:        formatTime(b.UpdatedAt),
	}
}

// documentToAPI преобразует доменную модель документа в API-формат.
func documentToAPI(d *model.Document) documentResponse {
	return documentResponse{
		ID:               d.ID,
		BatchID:          d.BatchID,
		FileName:         d.FileName,
		FileSize:         d.FileSize,
		MimeType:         d.MimeType,
		Status:           string(d.Status),
		ExtractedContent: d.ExtractedContent,
		Accuracy:         d.Accuracy,
		Precision:        d.Precision,
		Loss:             d.Loss,
		EnhancedText:     d.EnhancedText,
		TranslatedText:   d.TranslatedText,
		CreatedAt:        formatTime(d.CreatedAt),
		UpdatedAt:        formatTime(d.UpdatedAt),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime форматирует время для API-ответов.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// writeServiceError маппит ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500 с обобщённым сообщением,
// чтобы не раскрывать детали реализации.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервиса")
	}
}
