// pairing.go — короткоживущие коды сопряжения устройств.
//
// Desktop-клиент создаёт код, мобильное устройство предъявляет его и
// получает subject владельца. Код одноразовый: claim атомарно изымает
// запись из хранилища. Хранилище — in-memory LRU с TTL, per-instance;
// при рестарте сервиса непогашенные коды пропадают (принятый компромисс:
// код живёт минуты и его легко пересоздать).
package service

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики сопряжения.
var (
	pairingCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "df_pairing_codes_created_total",
		Help: "Общее количество созданных кодов сопряжения.",
	})
	pairingClaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "df_pairing_claims_total",
		Help: "Количество попыток погашения кодов сопряжения по результату.",
	}, []string{"result"})
)

// pairingAlphabet — без визуально похожих символов (0/O, 1/I/L).
const (
	pairingAlphabet   = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	pairingCodeLength = 8
)

// PairingSession — ожидающая погашения сессия сопряжения.
type PairingSession struct {
	// Code — одноразовый код, предъявляемый вторым устройством
	Code string
	// OwnerID — subject пользователя, создавшего код
	OwnerID string
	// CreatedAt — момент создания
	CreatedAt time.Time
	// ExpiresAt — момент истечения TTL
	ExpiresAt time.Time
}

// PairingService — одноразовые коды сопряжения с TTL.
type PairingService struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, PairingSession]
	ttl      time.Duration
	logger   *slog.Logger
}

// NewPairingService создаёт хранилище кодов сопряжения.
// maxEntries ограничивает число одновременно живущих кодов,
// ttl — время жизни каждого кода.
func NewPairingService(maxEntries int, ttl time.Duration, logger *slog.Logger) *PairingService {
	return &PairingService{
		sessions: expirable.NewLRU[string, PairingSession](maxEntries, nil, ttl),
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "pairing_service")),
	}
}

// Create генерирует новый код сопряжения для пользователя.
func (s *PairingService) Create(ownerID string) (*PairingSession, error) {
	code, err := generatePairingCode()
	if err != nil {
		return nil, fmt.Errorf("генерация кода сопряжения: %w", err)
	}

	now := time.Now()
	session := PairingSession{
		Code:      code,
		OwnerID:   ownerID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions.Add(code, session)
	s.mu.Unlock()

	pairingCreatedTotal.Inc()
	s.logger.Info("Код сопряжения создан", slog.String("owner_id", ownerID))

	return &session, nil
}

// Claim погашает код: возвращает сессию и атомарно изымает её из хранилища.
// Истёкший, неизвестный или уже погашенный код — ErrNotFound.
func (s *PairingService) Claim(code string) (*PairingSession, error) {
	s.mu.Lock()
	session, ok := s.sessions.Get(code)
	if ok {
		s.sessions.Remove(code)
	}
	s.mu.Unlock()

	if !ok {
		pairingClaimedTotal.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("%w: код сопряжения не найден или истёк", ErrNotFound)
	}

	pairingClaimedTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Код сопряжения погашен", slog.String("owner_id", session.OwnerID))

	return &session, nil
}

// generatePairingCode генерирует криптослучайный код из pairingAlphabet.
func generatePairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = pairingAlphabet[int(b)%len(pairingAlphabet)]
	}
	return string(buf), nil
}
