// batches.go — HTTP handlers для операций над пакетами документов.
// CRUD пакетов и пересчёт агрегированных метрик.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/godocflow/internal/api/errors"
	"github.com/bigkaa/godocflow/internal/api/middleware"
	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/service"
)

// createBatchRequest — тело POST /api/v1/batches.
type createBatchRequest struct {
	Name string `json:"name"`
}

// updateBatchRequest — тело PUT /api/v1/batches/{batchId}.
// nil-поля не изменяются.
type updateBatchRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

// CreateBatch обрабатывает POST /api/v1/batches.
func (h *APIHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())

	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	b, err := h.batches.Create(r.Context(), requester, req.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, batchToAPI(b))
}

// ListBatches обрабатывает GET /api/v1/batches.
// Возвращает пакеты владельца, новые первыми.
func (h *APIHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())

	batches, err := h.batches.List(r.Context(), requester)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		items = append(items, batchToAPI(b))
	}

	writeJSON(w, http.StatusOK, items)
}

// GetBatch обрабатывает GET /api/v1/batches/{batchId}.
// Query-параметр withDocuments=true добавляет в ответ документы пакета.
func (h *APIHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")
	withDocuments := r.URL.Query().Get("withDocuments") == "true"

	b, docs, err := h.batches.Get(r.Context(), batchID, requester, withDocuments)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := batchToAPI(b)
	if withDocuments {
		resp.Documents = make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			resp.Documents = append(resp.Documents, documentToAPI(d))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateBatch обрабатывает PUT /api/v1/batches/{batchId}.
// Частичное обновление имени и/или статуса пакета.
func (h *APIHandler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")

	var req updateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if req.Name == nil && req.Status == nil {
		apierrors.ValidationError(w, "Необходимо указать хотя бы одно поле для обновления (name или status)")
		return
	}

	upd := service.BatchUpdate{Name: req.Name}
	if req.Status != nil {
		status := model.BatchStatus(*req.Status)
		upd.Status = &status
	}

	b, err := h.batches.Update(r.Context(), batchID, requester, upd)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchToAPI(b))
}

// DeleteBatch обрабатывает DELETE /api/v1/batches/{batchId}.
// Каскадно удаляет документы пакета и их файлы.
func (h *APIHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")

	if err := h.batches.Delete(r.Context(), batchID, requester); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AggregateBatchMetrics обрабатывает PUT /api/v1/batches/{batchId}/aggregate-metrics.
// Пересчитывает агрегированные метрики пакета по COMPLETED документам.
func (h *APIHandler) AggregateBatchMetrics(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")

	b, err := h.aggregate.Aggregate(r.Context(), batchID, requester)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchToAPI(b))
}
