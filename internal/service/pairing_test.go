package service

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPairing_CreateAndClaim проверяет полный цикл: создание кода и погашение.
func TestPairing_CreateAndClaim(t *testing.T) {
	svc := NewPairingService(100, time.Minute, testLogger())

	session, err := svc.Create("user-1")
	if err != nil {
		t.Fatalf("ошибка создания кода: %v", err)
	}

	if len(session.Code) != pairingCodeLength {
		t.Errorf("длина кода: ожидалось %d, получено %d", pairingCodeLength, len(session.Code))
	}
	for _, r := range session.Code {
		if !strings.ContainsRune(pairingAlphabet, r) {
			t.Errorf("код содержит символ вне алфавита: %q", r)
		}
	}

	claimed, err := svc.Claim(session.Code)
	if err != nil {
		t.Fatalf("ошибка погашения кода: %v", err)
	}
	if claimed.OwnerID != "user-1" {
		t.Errorf("ожидался владелец user-1, получено %s", claimed.OwnerID)
	}
}

// TestPairing_ClaimIsOneShot проверяет одноразовость кода.
func TestPairing_ClaimIsOneShot(t *testing.T) {
	svc := NewPairingService(100, time.Minute, testLogger())

	session, err := svc.Create("user-1")
	if err != nil {
		t.Fatalf("ошибка создания кода: %v", err)
	}

	if _, err := svc.Claim(session.Code); err != nil {
		t.Fatalf("первое погашение должно пройти: %v", err)
	}

	if _, err := svc.Claim(session.Code); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное погашение: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestPairing_UnknownCode проверяет погашение несуществующего кода.
func TestPairing_UnknownCode(t *testing.T) {
	svc := NewPairingService(100, time.Minute, testLogger())

	if _, err := svc.Claim("NOSUCHCD"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestPairing_Expiry проверяет истечение кода по TTL.
func TestPairing_Expiry(t *testing.T) {
	svc := NewPairingService(100, 20*time.Millisecond, testLogger())

	session, err := svc.Create("user-1")
	if err != nil {
		t.Fatalf("ошибка создания кода: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := svc.Claim(session.Code); !errors.Is(err, ErrNotFound) {
		t.Errorf("истёкший код: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestPairing_UniqueCodes проверяет уникальность сгенерированных кодов.
func TestPairing_UniqueCodes(t *testing.T) {
	svc := NewPairingService(1000, time.Minute, testLogger())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		session, err := svc.Create("user-1")
		if err != nil {
			t.Fatalf("ошибка создания кода: %v", err)
		}
		if seen[session.Code] {
			t.Fatalf("код %s сгенерирован повторно", session.Code)
		}
		seen[session.Code] = true
	}
}
