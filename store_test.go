package authcore

import (
	"context"
	"sync"
)

// memStore is an in-memory UserStore for the engine tests.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string
	backup  map[string][]memBackupCode
}

type memBackupCode struct {
	hash [32]byte
	used bool
}

func newMemStore() *memStore {
	return &memStore{
		byID:    make(map[string]UserRecord),
		byEmail: make(map[string]string),
		backup:  make(map[string][]memBackupCode),
	}
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *memStore) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) CreateUser(_ context.Context, user UserRecord) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return UserRecord{}, ErrAccountExists
	}
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return user, nil
}

func (s *memStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	s.byID[userID] = user
	return nil
}

func (s *memStore) UpdateMFA(_ context.Context, userID, sealedSecret string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.MFASecret = sealedSecret
	user.MFAEnabled = enabled
	s.byID[userID] = user
	return nil
}

func (s *memStore) UpdateTOTPLastUsed(_ context.Context, userID string, counter uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.TOTPLastUsed = counter
	s.byID[userID] = user
	return nil
}

func (s *memStore) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if codes == nil {
		delete(s.backup, userID)
		return nil
	}
	entries := make([]memBackupCode, 0, len(codes))
	for _, c := range codes {
		entries = append(entries, memBackupCode{hash: c.Hash})
	}
	s.backup[userID] = entries
	return nil
}

func (s *memStore) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.backup[userID] {
		if !c.used && c.hash == hash {
			s.backup[userID][i].used = true
			return true, nil
		}
	}
	return false, nil
}

// softDelete marks the account deleted without removing the record.
func (s *memStore) softDelete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.byID[userID]
	now := user.CreatedAt
	user.DeletedAt = &now
	s.byID[userID] = user
}
