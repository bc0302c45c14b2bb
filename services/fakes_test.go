package services

import (
	"context"
	"sync"
	"time"

	"go.pilab.hu/iam/domain"
)

// In-memory repository fakes shared by the service tests.

type fakeAuthorizationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.AuthorizationRecord
	saveErr error
	findErr error
}

func newFakeAuthorizationRepo() *fakeAuthorizationRepo {
	return &fakeAuthorizationRepo{records: make(map[string]*domain.AuthorizationRecord)}
}

func (r *fakeAuthorizationRepo) Save(_ context.Context, record *domain.AuthorizationRecord) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *record
	r.records[record.ID] = &clone
	return nil
}

func (r *fakeAuthorizationRepo) FindByID(_ context.Context, id string) (*domain.AuthorizationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

func (r *fakeAuthorizationRepo) FindByToken(_ context.Context, value string, kind domain.TokenKind) (*domain.AuthorizationRecord, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := []domain.TokenKind{kind}
	if kind == "" {
		kinds = []domain.TokenKind{
			domain.TokenKindAccessToken,
			domain.TokenKindRefreshToken,
			domain.TokenKindAuthorizationCode,
		}
	}
	for _, k := range kinds {
		for _, record := range r.records {
			switch k {
			case domain.TokenKindAccessToken:
				if record.AccessToken != nil && record.AccessToken.Value == value {
					return record, nil
				}
			case domain.TokenKindRefreshToken:
				if record.RefreshToken != nil && record.RefreshToken.Value == value {
					return record, nil
				}
			case domain.TokenKindAuthorizationCode:
				if record.AuthorizationCode != nil && record.AuthorizationCode.Value == value {
					return record, nil
				}
			}
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *fakeAuthorizationRepo) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *fakeAuthorizationRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, record := range r.records {
		live := false
		if record.AccessToken != nil && !record.AccessToken.Expired(now) {
			live = true
		}
		if record.RefreshToken != nil && !record.RefreshToken.Expired(now) {
			live = true
		}
		if !live {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeAuthorizationRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*domain.RegisteredClient // keyed by internal id
}

func newFakeClientRepo(clients ...*domain.RegisteredClient) *fakeClientRepo {
	repo := &fakeClientRepo{clients: make(map[string]*domain.RegisteredClient)}
	for _, client := range clients {
		repo.clients[client.ID] = client
	}
	return repo
}

func (r *fakeClientRepo) Save(_ context.Context, client *domain.RegisteredClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
	return nil
}

func (r *fakeClientRepo) FindByID(_ context.Context, id string) (*domain.RegisteredClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[id]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return client, nil
}

func (r *fakeClientRepo) FindByClientID(_ context.Context, clientID string) (*domain.RegisteredClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, client := range r.clients {
		if client.ClientID == clientID {
			return client, nil
		}
	}
	return nil, domain.ErrClientNotFound
}

type fakeUserDirectory struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserDirectory(users ...*domain.User) *fakeUserDirectory {
	dir := &fakeUserDirectory{users: make(map[string]*domain.User)}
	for _, user := range users {
		dir.users[user.Username] = user
	}
	return dir
}

func (d *fakeUserDirectory) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (d *fakeUserDirectory) set(user *domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.Username] = user
}

type fakeCredentialRepo struct {
	mu          sync.Mutex
	credentials map[string]*domain.ClientCredential // keyed by app id
	resources   map[string][]string                 // credential id -> resource ids
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{
		credentials: make(map[string]*domain.ClientCredential),
		resources:   make(map[string][]string),
	}
}

func (r *fakeCredentialRepo) Save(_ context.Context, credential *domain.ClientCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[credential.AppID] = credential
	return nil
}

func (r *fakeCredentialRepo) FindByAppID(_ context.Context, appID string) (*domain.ClientCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	credential, ok := r.credentials[appID]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return credential, nil
}

func (r *fakeCredentialRepo) ResourceIDs(_ context.Context, credentialID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resources[credentialID], nil
}

func (r *fakeCredentialRepo) AssignResource(_ context.Context, credentialID, resourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[credentialID] = append(r.resources[credentialID], resourceID)
	return nil
}

type fakeResourceRepo struct {
	mu        sync.Mutex
	resources map[string]*domain.Resource
}

func newFakeResourceRepo(resources ...*domain.Resource) *fakeResourceRepo {
	repo := &fakeResourceRepo{resources: make(map[string]*domain.Resource)}
	for _, resource := range resources {
		repo.resources[resource.ID] = resource
	}
	return repo
}

func (r *fakeResourceRepo) Save(_ context.Context, resource *domain.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[resource.ID] = resource
	return nil
}

func (r *fakeResourceRepo) FindByIDs(_ context.Context, ids []string) ([]*domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make([]*domain.Resource, 0, len(ids))
	for _, id := range ids {
		if resource, ok := r.resources[id]; ok {
			found = append(found, resource)
		}
	}
	return found, nil
}

type fakeSigningKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*domain.SigningKey

	saveCount int
}

func newFakeSigningKeyRepo() *fakeSigningKeyRepo {
	return &fakeSigningKeyRepo{keys: make(map[string]*domain.SigningKey)}
}

func (r *fakeSigningKeyRepo) Save(_ context.Context, key *domain.SigningKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.KeyID] = key
	r.saveCount++
	return nil
}

func (r *fakeSigningKeyRepo) FindCurrent(_ context.Context) (*domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.SigningKey
	now := time.Now()
	for _, key := range r.keys {
		if !key.IsActive || key.Expired(now) {
			continue
		}
		if newest == nil || key.CreatedAt.After(newest.CreatedAt) {
			newest = key
		}
	}
	if newest == nil {
		return nil, domain.ErrSigningKeyNotFound
	}
	return newest, nil
}

func (r *fakeSigningKeyRepo) FindVerification(_ context.Context) ([]*domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var keys []*domain.SigningKey
	for _, key := range r.keys {
		if key.IsActive && !key.Expired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (r *fakeSigningKeyRepo) FindByKeyID(_ context.Context, keyID string) (*domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[keyID]
	if !ok {
		return nil, domain.ErrSigningKeyNotFound
	}
	return key, nil
}

func (r *fakeSigningKeyRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, key := range r.keys {
		if key.IsActive && key.Expired(now) {
			key.IsActive = false
			count++
		}
	}
	return count, nil
}

func (r *fakeSigningKeyRepo) saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveCount
}
