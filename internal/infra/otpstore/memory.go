package otpstore

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"medride/internal/domain/model"
)

// プロセス内のOTP置き場。複数レプリカでは共有されない。
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]model.OTPChallenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]model.OTPChallenge)}
}

func (s *MemoryStore) Save(_ context.Context, challenge model.OTPChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.Email] = challenge
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, email string, codeHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[email]
	if !ok {
		return false, nil
	}
	if ch.ExpiredAt(now) {
		delete(s.challenges, email)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(ch.CodeHash), []byte(codeHash)) != 1 {
		return false, nil
	}

	delete(s.challenges, email)
	return true, nil
}

// 期限切れを掃除して削除件数を返す
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for email, ch := range s.challenges {
		if ch.ExpiredAt(now) {
			delete(s.challenges, email)
			n++
		}
	}
	return n
}

// ctxが終わるまでinterval毎にSweepする
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(now())
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
