package handlers

import (
	"mime/multipart"
	"strings"
	"testing"
)

func header(name string, size int64) *multipart.FileHeader {
	return &multipart.FileHeader{Filename: name, Size: size}
}

// TestValidateUploadHeaders проверяет лимиты multipart-загрузки:
// количество файлов и размер каждого файла отдельно.
func TestValidateUploadHeaders(t *testing.T) {
	const maxSize = 1000
	const maxFiles = 3

	tests := []struct {
		name    string
		files   []*multipart.FileHeader
		wantErr string
	}{
		{
			name:  "один файл в пределах лимита",
			files: []*multipart.FileHeader{header("a.pdf", 500)},
		},
		{
			name: "несколько файлов ровно на лимите",
			files: []*multipart.FileHeader{
				header("a.pdf", maxSize),
				header("b.pdf", maxSize),
				header("c.pdf", maxSize),
			},
		},
		{
			name:    "без файлов",
			files:   nil,
			wantErr: "files",
		},
		{
			name: "слишком много файлов",
			files: []*multipart.FileHeader{
				header("a.pdf", 1), header("b.pdf", 1),
				header("c.pdf", 1), header("d.pdf", 1),
			},
			wantErr: "лимит файлов",
		},
		{
			name: "один файл превышает лимит размера",
			files: []*multipart.FileHeader{
				header("a.pdf", 500),
				header("big.pdf", maxSize+1),
			},
			wantErr: "big.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateUploadHeaders(tt.files, maxSize, maxFiles)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("неожиданная ошибка: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ожидалась ошибка валидации")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}
