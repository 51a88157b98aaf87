package filestore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestResolve_RejectsUnsafeKeys проверяет защиту от path traversal.
func TestResolve_RejectsUnsafeKeys(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	unsafe := []string{
		"",
		"../../etc/passwd",
		"docs/../../secret",
		"/etc/passwd",
		"documents/../../../root/.ssh/id_rsa",
		"..",
		".",
	}

	for _, key := range unsafe {
		if _, err := fs.Resolve(key); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Resolve(%q): ожидалась ErrUnsafePath, получено %v", key, err)
		}
	}
}

// TestResolve_AcceptsSafeKeys проверяет разрешение корректных storage key.
func TestResolve_AcceptsSafeKeys(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	full, err := fs.Resolve("documents/abc/file.pdf")
	if err != nil {
		t.Fatalf("корректный key отклонён: %v", err)
	}

	expected := filepath.Join(fs.DataDir(), "documents", "abc", "file.pdf")
	if full != expected {
		t.Errorf("ожидалось %s, получено %s", expected, full)
	}
}

// TestSaveDocument проверяет сохранение файла документа.
func TestSaveDocument(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("Hello, World! Тестовые данные для проверки.")
	result, err := fs.SaveDocument(bytes.NewReader(content), "batch-1", "scan page 1.pdf")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	// Storage key лежит в директории пакета
	if !strings.HasPrefix(result.StorageKey, "documents/batch-1/") {
		t.Errorf("storage key должен начинаться с documents/batch-1/: %s", result.StorageKey)
	}
	if !strings.HasSuffix(result.StorageKey, ".pdf") {
		t.Errorf("должно сохраняться расширение .pdf: %s", result.StorageKey)
	}

	// Файл существует и содержимое совпадает
	data, err := os.ReadFile(result.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
}

// TestSaveDocument_NoTmpFile проверяет, что temp файл удалён после сохранения.
func TestSaveDocument_NoTmpFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveDocument(bytes.NewReader([]byte("data")), "b1", "file.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	tmpPath := result.FullPath + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("временный файл не должен существовать")
	}
}

// TestSaveDocument_UniqueKeys проверяет уникальность ключей для одного имени.
func TestSaveDocument_UniqueKeys(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	r1, err := fs.SaveDocument(bytes.NewReader([]byte("a")), "b1", "same.pdf")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	r2, err := fs.SaveDocument(bytes.NewReader([]byte("b")), "b1", "same.pdf")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if r1.StorageKey == r2.StorageKey {
		t.Errorf("ключи для одинаковых имён должны различаться: %s", r1.StorageKey)
	}
}

// TestOpen проверяет чтение файла.
func TestOpen(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("read test data")
	result, err := fs.SaveDocument(bytes.NewReader(content), "b1", "read-test.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	f, err := fs.Open(result.StorageKey)
	if err != nil {
		t.Fatalf("ошибка открытия для чтения: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}

	if !bytes.Equal(data, content) {
		t.Error("прочитанные данные не совпадают с записанными")
	}
}

// TestOpen_NotFound проверяет ошибку при чтении несуществующего файла.
func TestOpen_NotFound(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if _, err := fs.Open("documents/b1/nonexistent.txt"); err == nil {
		t.Error("ожидалась ошибка для несуществующего файла")
	}
}

// TestDelete проверяет удаление файла.
func TestDelete(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveDocument(bytes.NewReader([]byte("delete me")), "b1", "delete.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if err := fs.Delete(result.StorageKey); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}

	if fs.Exists(result.StorageKey) {
		t.Error("файл должен быть удалён")
	}
}

// TestDelete_NotFound проверяет, что удаление несуществующего файла не ошибка.
func TestDelete_NotFound(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if err := fs.Delete("documents/b1/nonexistent.txt"); err != nil {
		t.Errorf("удаление несуществующего файла не должно быть ошибкой: %v", err)
	}
}

// TestDelete_UnsafeKey проверяет, что traversal-key не приводит к удалению.
func TestDelete_UnsafeKey(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if err := fs.Delete("../../etc/passwd"); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("ожидалась ErrUnsafePath, получено %v", err)
	}
}

// TestGenerateStorageName проверяет генерацию имени файла.
func TestGenerateStorageName(t *testing.T) {
	name := generateStorageName("My Scan Page.pdf")

	if !strings.HasSuffix(name, ".pdf") {
		t.Errorf("должно сохраняться расширение .pdf: %s", name)
	}
	// Имя файла не должно содержать пробелы
	if strings.Contains(name, " ") {
		t.Errorf("не должно содержать пробелов: %s", name)
	}
	if !strings.Contains(name, "MyScanPage") {
		t.Errorf("должно содержать очищенное оригинальное имя: %s", name)
	}
}

// TestGenerateStorageName_LongName проверяет обрезку длинных имён.
func TestGenerateStorageName_LongName(t *testing.T) {
	long := strings.Repeat("a", 200) + ".pdf"
	name := generateStorageName(long)

	// timestamp(14) + "_" + name(<=50) + "_" + uuid(8) + ext(<=10)
	if len(name) > 14+1+50+1+8+10 {
		t.Errorf("имя должно быть ограничено по длине, получено %d символов: %s", len(name), name)
	}
}

// TestSanitize проверяет очистку строк для имени файла.
func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"hello world", "helloworld"},
		{"test-file_01", "test-file_01"},
		{"file@#$%", "file"},
		{"", "file"}, // пустая строка → "file"
		{"скан", "скан"},
	}

	for _, tt := range tests {
		result := sanitize(tt.input)
		if result != tt.expected {
			t.Errorf("sanitize(%q): ожидалось %q, получено %q", tt.input, tt.expected, result)
		}
	}
}

// TestReadinessChecker проверяет readiness probe хранилища.
func TestReadinessChecker(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	checker := NewReadinessChecker(fs)
	status, msg := checker.CheckReady()
	if status != "ok" {
		t.Errorf("ожидался статус ok, получено %s (%s)", status, msg)
	}
}
