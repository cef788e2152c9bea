package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

var (
	ErrNoCredential  = errors.New("no API key available")
	ErrNoSelector    = errors.New("API key selection is not available")
	ErrEmptySelected = errors.New("selected API key is empty")
)

// Selector asks the embedding environment (the browser page) to pick an API key.
type Selector interface {
	SelectCredential(ctx context.Context) (string, error)
}

// Store - 현재 사용 중인 API 키 (메모리에만 보관)
type Store struct {
	mu  sync.RWMutex
	key string
}

func NewStore(initial string) *Store {
	return &Store{key: strings.TrimSpace(initial)}
}

func (s *Store) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

func (s *Store) Set(key string) {
	s.mu.Lock()
	s.key = strings.TrimSpace(key)
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.Set("")
}

// Provider resolves the key for an attempt, falling back to interactive selection.
type Provider struct {
	store    *Store
	selector Selector
}

// NewProvider - selector는 nil 가능 (선택 기능 없음)
func NewProvider(store *Store, selector Selector) *Provider {
	return &Provider{store: store, selector: selector}
}

func (p *Provider) Store() *Store {
	return p.store
}

// Resolve returns the stored key, or asks the selector when none is stored.
func (p *Provider) Resolve(ctx context.Context) (string, error) {
	if key := p.store.Get(); key != "" {
		return key, nil
	}

	log.Printf("🔑 [Credential] No API key stored, requesting selection")
	key, err := p.Reselect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	return key, nil
}

// Reselect discards the stored key and asks the selector for a new one.
func (p *Provider) Reselect(ctx context.Context) (string, error) {
	p.store.Clear()

	if p.selector == nil {
		return "", ErrNoSelector
	}

	key, err := p.selector.SelectCredential(ctx)
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptySelected
	}

	p.store.Set(key)
	log.Printf("✅ [Credential] New API key selected")
	return key, nil
}
