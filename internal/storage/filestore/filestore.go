// Пакет filestore — операции с физическими файлами документов на диске.
// Обеспечивает streaming-запись во временный файл с атомарным rename,
// чтение для preview/download и удаление по относительному storage key.
//
// Все пути — относительные storage key с forward slash внутри dataDir:
// documents/{batchID}/{generatedName}. Любой путь, выходящий за пределы
// dataDir после нормализации, отклоняется (защита от path traversal).
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnsafePath — storage key пуст, абсолютен или выходит за пределы dataDir.
var ErrUnsafePath = errors.New("небезопасный storage key")

// FileStore — управление физическими файлами документов на диске.
type FileStore struct {
	// dataDir — корневая директория хранения файлов (DF_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StorageKey — относительный путь файла в dataDir (forward slash)
	StorageKey string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт новый FileStore. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить абсолютный путь %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: abs}, nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// Resolve преобразует относительный storage key в абсолютный путь на диске.
// Возвращает ErrUnsafePath, если key пуст, абсолютен или после нормализации
// выходит за пределы dataDir (traversal через сегменты "..").
func (fs *FileStore) Resolve(storageKey string) (string, error) {
	if storageKey == "" {
		return "", fmt.Errorf("%w: пустой путь", ErrUnsafePath)
	}
	if strings.HasPrefix(storageKey, "/") || filepath.IsAbs(storageKey) {
		return "", fmt.Errorf("%w: %q — абсолютный путь", ErrUnsafePath, storageKey)
	}

	// Нормализуем как slash-путь до преобразования в путь ОС
	cleaned := path.Clean("/" + storageKey)
	// После Clean путь начинается с "/"; убираем ведущий слэш
	rel := strings.TrimPrefix(cleaned, "/")
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, storageKey)
	}

	full := filepath.Join(fs.dataDir, filepath.FromSlash(rel))

	// Страховка: итоговый путь обязан остаться внутри dataDir
	if full != fs.dataDir && !strings.HasPrefix(full, fs.dataDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q выходит за пределы директории данных", ErrUnsafePath, storageKey)
	}
	// path.Clean("/a/../../b") = "/b" — сегменты "..", съевшие корень,
	// уже не видны по префиксу. Отклоняем исходные ключи с ".." явно.
	for _, seg := range strings.Split(storageKey, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q содержит сегмент ..", ErrUnsafePath, storageKey)
		}
	}

	return full, nil
}

// SaveDocument записывает данные из reader в documents/{batchID}/ с
// сгенерированным именем. Возвращает storage key, полный путь и размер.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) SaveDocument(reader io.Reader, batchID, originalFilename string) (*SaveResult, error) {
	storageKey := path.Join("documents", batchID, generateStorageName(originalFilename))

	fullPath, err := fs.Resolve(storageKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории пакета: %w", err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StorageKey: storageKey,
		FullPath:   fullPath,
		Size:       size,
	}, nil
}

// Open открывает файл для чтения (preview/download) и возвращает *os.File.
// Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storageKey string) (*os.File, error) {
	fullPath, err := fs.Resolve(storageKey)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storageKey)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storageKey, err)
	}

	return f, nil
}

// Delete удаляет файл с диска по относительному storage key.
// Возвращает nil если файл уже не существует (идемпотентность).
// Небезопасный путь — ErrUnsafePath, удаление не выполняется.
func (fs *FileStore) Delete(storageKey string) error {
	fullPath, err := fs.Resolve(storageKey)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storageKey, err)
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(storageKey string) bool {
	fullPath, err := fs.Resolve(storageKey)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// ReadinessChecker — проверка доступности файлового хранилища для readiness probe.
type ReadinessChecker struct {
	store *FileStore
}

// NewReadinessChecker создаёт checker файлового хранилища.
func NewReadinessChecker(store *FileStore) *ReadinessChecker {
	return &ReadinessChecker{store: store}
}

// CheckReady проверяет, что директория данных существует и доступна на запись.
func (c *ReadinessChecker) CheckReady() (status, message string) {
	info, err := os.Stat(c.store.dataDir)
	if err != nil {
		return "fail", fmt.Sprintf("директория данных недоступна: %v", err)
	}
	if !info.IsDir() {
		return "fail", fmt.Sprintf("%s не является директорией", c.store.dataDir)
	}

	// Пробная запись: хранилище только для чтения бесполезно для загрузки
	probe, err := os.CreateTemp(c.store.dataDir, ".readiness-*")
	if err != nil {
		return "fail", fmt.Sprintf("директория данных недоступна на запись: %v", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return "ok", "хранилище доступно"
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {timestamp}_{sanitizedName}_{shortUUID}{ext}
// Пример: 20260830120000_scan-page-1_a1b2c3d4.pdf
func generateStorageName(originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	name := strings.TrimSuffix(filepath.Base(originalFilename), ext)

	name = sanitize(name)

	// Ограничиваем длину имени для предотвращения проблем с FS
	if len(name) > 50 {
		name = name[:50]
	}
	if len(ext) > 10 {
		ext = ext[:10]
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8] // Короткий UUID для уникальности

	return fmt.Sprintf("%s_%s_%s%s", ts, name, uid, ext)
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}
