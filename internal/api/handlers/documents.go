// documents.go — HTTP handlers для операций над документами пакета.
// Multipart-загрузка, удаление, запись результатов обработки, preview и download.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/godocflow/internal/api/errors"
	"github.com/bigkaa/godocflow/internal/api/middleware"
	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/service"
)

// multipartBufferSize — размер буфера в памяти при парсинге multipart,
// остальное уходит во временные файлы.
const multipartBufferSize = 32 << 20 // 32 MB

// uploadResponse — ответ на загрузку документов: обновлённый пакет
// и созданные документы.
type uploadResponse struct {
	Batch     batchResponse      `json:"batch"`
	Documents []documentResponse `json:"documents"`
}

// updateResultRequest — тело PUT .../documents/{docId}/results.
// nil-поля не изменяются.
type updateResultRequest struct {
	ExtractedContent *string  `json:"extractedContent"`
	Accuracy         *float64 `json:"accuracy"`
	Precision        *float64 `json:"precision"`
	Loss             *float64 `json:"loss"`
	EnhancedText     *string  `json:"enhancedText"`
	TranslatedText   *string  `json:"translatedText"`
	Status           *string  `json:"status"`
}

// validateUploadHeaders проверяет количество файлов в запросе и размер
// каждого файла. Лимит maxFileSize применяется к каждому файлу отдельно.
func validateUploadHeaders(files []*multipart.FileHeader, maxFileSize int64, maxFiles int) error {
	if len(files) == 0 {
		return fmt.Errorf("поле 'files' обязательно: не передано ни одного файла")
	}
	if len(files) > maxFiles {
		return fmt.Errorf("превышен лимит файлов в запросе: %d > %d", len(files), maxFiles)
	}
	for _, header := range files {
		if header.Size > maxFileSize {
			return fmt.Errorf("файл %s превышает лимит размера: %d > %d байт",
				header.Filename, header.Size, maxFileSize)
		}
	}
	return nil
}

// UploadDocuments обрабатывает POST /api/v1/batches/{batchId}/documents.
// Multipart form: поле files (1..N файлов). Размер каждого файла ограничен
// maxUploadSize, количество файлов — maxFilesPerUpload.
func (h *APIHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")

	// Жёсткий предохранитель на размер всего запроса: per-file лимит
	// умноженный на лимит количества файлов, плюс multipart-накладные.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize*int64(h.maxFilesPerUpload)+multipartBufferSize)

	if err := r.ParseMultipartForm(multipartBufferSize); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Не удалось удалить временные файлы multipart",
				slog.String("error", err.Error()),
			)
		}
	}()

	files := r.MultipartForm.File["files"]
	if err := validateUploadHeaders(files, h.maxUploadSize, h.maxFilesPerUpload); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	uploads := make([]service.Upload, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения файла %s: %s", header.Filename, err.Error()))
			return
		}
		defer f.Close()

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		uploads = append(uploads, service.Upload{
			Reader:   f,
			FileName: header.Filename,
			MimeType: mimeType,
		})
	}

	batch, docs, err := h.uploads.AddDocuments(r.Context(), batchID, requester, uploads)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := uploadResponse{
		Batch:     batchToAPI(batch),
		Documents: make([]documentResponse, 0, len(docs)),
	}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentToAPI(d))
	}

	writeJSON(w, http.StatusCreated, resp)
}

// DeleteDocument обрабатывает DELETE /api/v1/batches/{batchId}/documents/{docId}.
// Возвращает обновлённый пакет с пересчитанными счётчиками.
func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")
	docID := chi.URLParam(r, "docId")

	batch, err := h.uploads.RemoveDocument(r.Context(), batchID, docID, requester)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchToAPI(batch))
}

// UpdateDocumentResult обрабатывает PUT /api/v1/batches/{batchId}/documents/{docId}/results.
// Записывает результаты внешнего OCR/enhancement/translation конвейера.
func (h *APIHandler) UpdateDocumentResult(w http.ResponseWriter, r *http.Request) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")
	docID := chi.URLParam(r, "docId")

	var req updateResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	upd := service.ResultUpdate{
		ExtractedContent: req.ExtractedContent,
		Accuracy:         req.Accuracy,
		Precision:        req.Precision,
		Loss:             req.Loss,
		EnhancedText:     req.EnhancedText,
		TranslatedText:   req.TranslatedText,
	}
	if req.Status != nil {
		status := model.DocumentStatus(*req.Status)
		upd.Status = &status
	}

	doc, err := h.uploads.UpdateDocumentResult(r.Context(), batchID, docID, requester, upd)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, documentToAPI(doc))
}

// PreviewDocument обрабатывает GET .../documents/{docId}/preview.
// Отдаёт содержимое inline с MIME-типом документа.
func (h *APIHandler) PreviewDocument(w http.ResponseWriter, r *http.Request) {
	h.serveDocument(w, r, "inline")
}

// DownloadDocument обрабатывает GET .../documents/{docId}/download.
// Отдаёт содержимое как attachment с оригинальным именем файла.
func (h *APIHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	h.serveDocument(w, r, "attachment")
}

// serveDocument отдаёт файл документа через http.ServeContent
// (Range requests и If-Modified-Since поддерживаются автоматически).
func (h *APIHandler) serveDocument(w http.ResponseWriter, r *http.Request, disposition string) {
	requester := middleware.SubjectFromContext(r.Context())
	batchID := chi.URLParam(r, "batchId")
	docID := chi.URLParam(r, "docId")

	doc, err := h.uploads.GetDocument(r.Context(), batchID, docID, requester)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	file, err := h.store.Open(doc.StorageKey)
	if err != nil {
		h.logger.Error("Файл документа не найден на диске",
			slog.String("document_id", doc.ID),
			slog.String("storage_key", doc.StorageKey),
			slog.String("error", err.Error()),
		)
		apierrors.NotFound(w, fmt.Sprintf("Файл документа %s не найден на диске", doc.ID))
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.FileName))

	http.ServeContent(w, r, doc.FileName, stat.ModTime(), file)
}
