package service

import (
	"bytes"
	"testing"

	"github.com/bigkaa/godocflow/internal/storage/filestore"
)

func testStore(t *testing.T) *filestore.FileStore {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return store
}

// TestCleanup_DeleteStored проверяет удаление одного файла.
func TestCleanup_DeleteStored(t *testing.T) {
	store := testStore(t)
	cleanup := NewCleanupCoordinator(store, testLogger())

	saved, err := store.SaveDocument(bytes.NewReader([]byte("data")), "b1", "file.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if !cleanup.DeleteStored(saved.StorageKey) {
		t.Error("удаление существующего файла должно быть успешным")
	}
	if store.Exists(saved.StorageKey) {
		t.Error("файл должен быть удалён с диска")
	}
}

// TestCleanup_DeleteStoredIdempotent проверяет идемпотентность удаления.
func TestCleanup_DeleteStoredIdempotent(t *testing.T) {
	store := testStore(t)
	cleanup := NewCleanupCoordinator(store, testLogger())

	if !cleanup.DeleteStored("documents/b1/missing.txt") {
		t.Error("удаление отсутствующего файла должно считаться успехом")
	}
}

// TestCleanup_DeleteStoredEmptyKey проверяет, что пустой ключ отвергается.
func TestCleanup_DeleteStoredEmptyKey(t *testing.T) {
	store := testStore(t)
	cleanup := NewCleanupCoordinator(store, testLogger())

	if cleanup.DeleteStored("") {
		t.Error("пустой ключ не должен считаться успешно удалённым")
	}
}

// TestCleanup_DeleteStoredUnsafe проверяет, что traversal-ключ даёт неуспех.
func TestCleanup_DeleteStoredUnsafe(t *testing.T) {
	store := testStore(t)
	cleanup := NewCleanupCoordinator(store, testLogger())

	if cleanup.DeleteStored("../../etc/passwd") {
		t.Error("небезопасный ключ не должен считаться успешно удалённым")
	}
}

// TestCleanup_DeleteAll проверяет конкурентное удаление набора файлов
// с подсчётом успехов (all-settle).
func TestCleanup_DeleteAll(t *testing.T) {
	store := testStore(t)
	cleanup := NewCleanupCoordinator(store, testLogger())

	keys := make([]string, 0, 3)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		saved, err := store.SaveDocument(bytes.NewReader([]byte("data")), "b1", name)
		if err != nil {
			t.Fatalf("ошибка сохранения: %v", err)
		}
		keys = append(keys, saved.StorageKey)
	}
	// Один небезопасный ключ в наборе не мешает удалению остальных
	keys = append(keys, "../../outside")

	deleted := cleanup.DeleteAll(keys)
	if deleted != 3 {
		t.Errorf("ожидалось 3 успешных удаления, получено %d", deleted)
	}
	for _, key := range keys[:3] {
		if store.Exists(key) {
			t.Errorf("файл %s должен быть удалён", key)
		}
	}
}

// TestCleanup_DeleteAllEmpty проверяет пустой набор ключей.
func TestCleanup_DeleteAllEmpty(t *testing.T) {
	store := testStore(t)
	cleanup := NewCleanupCoordinator(store, testLogger())

	if deleted := cleanup.DeleteAll(nil); deleted != 0 {
		t.Errorf("ожидалось 0 удалений, получено %d", deleted)
	}
}
