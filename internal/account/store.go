// Package account holds the operator accounts behind the chat bot: one
// long-lived access token per operator, with at most one bound chat session.
package account

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"meb-console/internal/model"
	"meb-console/internal/secure"
)

var ErrInvalidToken = errors.New("account: invalid token")
var ErrNotFound = errors.New("account: not found")

type Store struct {
	mu        sync.Mutex
	path      string
	key       []byte
	operators []model.Operator
}

// Open loads the account document at path. A missing or undecodable document
// starts with no operators.
func Open(path string, key []byte) *Store {
	s := &Store{path: path, key: key}
	secure.LoadDocument(path, key, &s.operators)
	return s
}

// Login binds chatID to the operator holding accessToken. An unknown token
// fails; a token already bound elsewhere silently rebinds (last login wins).
func (s *Store) Login(accessToken string, chatID int64) (model.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.operators {
		if s.operators[i].AccessToken == accessToken {
			s.operators[i].HasLogged = true
			s.operators[i].ChatID = chatID
			s.persistLocked()
			return s.operators[i], nil
		}
	}
	return model.Operator{}, ErrInvalidToken
}

// Logout clears the binding for chatID.
func (s *Store) Logout(chatID int64) (model.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.operators {
		if s.operators[i].ChatID == chatID && s.operators[i].HasLogged {
			s.operators[i].HasLogged = false
			s.operators[i].ChatID = 0
			s.persistLocked()
			return s.operators[i], nil
		}
	}
	return model.Operator{}, ErrNotFound
}

// IsAuthenticated reports whether chatID is bound to a logged-in operator.
func (s *Store) IsAuthenticated(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.operators {
		if op.ChatID == chatID && op.HasLogged {
			return true
		}
	}
	return false
}

// Provision returns the operator owning chatID, creating one with a fresh
// access token if none exists. Idempotent per chat.
func (s *Store) Provision(chatID int64) model.Operator {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.operators {
		if op.ChatID == chatID {
			return op
		}
	}

	op := model.Operator{
		ID:          uuid.NewString(),
		AccessToken: secure.GenerateToken(16),
		ChatID:      chatID,
	}
	s.operators = append(s.operators, op)
	s.persistLocked()
	return op
}

// FindByToken looks an operator up by access token without side effects.
func (s *Store) FindByToken(accessToken string) (model.Operator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.operators {
		if op.AccessToken == accessToken {
			return op, true
		}
	}
	return model.Operator{}, false
}

// LoggedIn returns the chat IDs of all currently logged-in operators.
func (s *Store) LoggedIn() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, op := range s.operators {
		if op.HasLogged && op.ChatID != 0 {
			ids = append(ids, op.ChatID)
		}
	}
	return ids
}

func (s *Store) persistLocked() {
	if err := secure.SaveDocument(s.path, s.key, s.operators); err != nil {
		log.Printf("account: persist: %v", err)
	}
}
