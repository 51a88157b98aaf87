// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — ресурс существует, но принадлежит другому пользователю.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrConflict — несогласованность ссылок (документ не принадлежит пакету из URL).
	ErrConflict = errors.New("конфликт ссылок")
	// ErrStorage — неожиданная ошибка файловой операции при записи.
	// Ошибки cleanup-удалений НЕ оборачиваются в ErrStorage — они логируются
	// и никогда не становятся результатом операции.
	ErrStorage = errors.New("ошибка файлового хранилища")
)
