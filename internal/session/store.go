// Package session manages linking sessions: short-lived records created when
// a signed-in user starts an IDP flow to attach an external identity to their
// account. The callback engine resolves the link target from these records.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/idpgate/internal/cache"
	"github.com/google/uuid"
)

// ErrNotFound se retorna cuando la sesión de linking no existe o expiró.
var ErrNotFound = errors.New("session: link session not found")

// LinkSession vincula la sesión del usuario con el flujo de linking en curso.
type LinkSession struct {
	ID            string `json:"id"`
	SessionToken  string `json:"sessionToken"`
	FingerprintID string `json:"fingerprintId"`
	CreatedAt     int64  `json:"createdAt"`
}

// Store persiste LinkSessions en el cache configurado (memory o redis).
type Store struct {
	cache cache.Client
	ttl   time.Duration
}

// NewStore crea un Store con el TTL dado para cada sesión.
func NewStore(c cache.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{cache: c, ttl: ttl}
}

func key(id string) string { return "link:sess:" + id }

// Create registra una nueva sesión de linking y retorna su ID.
func (s *Store) Create(ctx context.Context, sessionToken, fingerprintID string) (*LinkSession, error) {
	ls := &LinkSession{
		ID:            uuid.NewString(),
		SessionToken:  sessionToken,
		FingerprintID: fingerprintID,
		CreatedAt:     time.Now().UTC().Unix(),
	}
	b, err := json.Marshal(ls)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key(ls.ID), string(b), s.ttl); err != nil {
		return nil, fmt.Errorf("session: store link session: %w", err)
	}
	return ls, nil
}

// Get recupera una sesión de linking por ID.
func (s *Store) Get(ctx context.Context, id string) (*LinkSession, error) {
	raw, err := s.cache.Get(ctx, key(id))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ls LinkSession
	if err := json.Unmarshal([]byte(raw), &ls); err != nil {
		return nil, fmt.Errorf("session: corrupt link session %s: %w", id, err)
	}
	return &ls, nil
}

// Delete elimina una sesión de linking (tras completar el flujo).
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, key(id))
}
