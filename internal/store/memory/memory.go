// Package memory provides in-memory store implementations for unit tests.
// They honor the same uniqueness invariants as the SQL backends so router
// tests exercise the real idempotence paths.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/store"
)

// NewStores returns a full in-memory store set.
func NewStores() *store.Stores {
	return &store.Stores{
		Bindings:      NewBindingStore(),
		Channels:      NewChannelStore(),
		Conversations: NewConversationStore(),
		Messages:      NewMessageStore(),
		Comments:      NewCommentStore(),
	}
}

type BindingStore struct {
	mu       sync.RWMutex
	bindings []store.Binding
}

func NewBindingStore() *BindingStore { return &BindingStore{} }

// Add seeds a binding. Test helper; the webhook path never writes bindings.
func (s *BindingStore) Add(b store.Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.Must(uuid.NewV7())
	}
	s.bindings = append(s.bindings, b)
}

func (s *BindingStore) FindActive(_ context.Context, platform store.Platform, externalAccountID string) ([]store.Binding, error) {
	return s.find(platform, externalAccountID, true), nil
}

func (s *BindingStore) FindAny(_ context.Context, platform store.Platform, externalAccountID string) ([]store.Binding, error) {
	return s.find(platform, externalAccountID, false), nil
}

func (s *BindingStore) ListActive(_ context.Context) ([]store.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Binding
	for _, b := range s.bindings {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *BindingStore) find(platform store.Platform, externalAccountID string, activeOnly bool) []store.Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Binding
	for _, b := range s.bindings {
		if b.Platform != platform || b.ExternalAccountID != externalAccountID {
			continue
		}
		if activeOnly && !b.Active {
			continue
		}
		out = append(out, b)
	}
	return out
}

type ChannelStore struct {
	mu       sync.RWMutex
	settings map[uuid.UUID]store.ChannelSettings
}

func NewChannelStore() *ChannelStore {
	return &ChannelStore{settings: make(map[uuid.UUID]store.ChannelSettings)}
}

func (s *ChannelStore) Set(cs store.ChannelSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[cs.ChannelID] = cs
}

func (s *ChannelStore) Settings(_ context.Context, channelID uuid.UUID) (*store.ChannelSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.settings[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cs, nil
}

type convKey struct {
	channelID uuid.UUID
	platform  store.Platform
	userID    string
	kind      store.ConversationKind
}

type ConversationStore struct {
	mu    sync.RWMutex
	byKey map[convKey]uuid.UUID
	byID  map[uuid.UUID]store.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byKey: make(map[convKey]uuid.UUID),
		byID:  make(map[uuid.UUID]store.Conversation),
	}
}

func (s *ConversationStore) FindByKey(_ context.Context, channelID uuid.UUID, platform store.Platform, externalUserID string, kind store.ConversationKind) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[convKey{channelID, platform, externalUserID, kind}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := s.byID[id]
	return &c, nil
}

func (s *ConversationStore) Get(_ context.Context, id uuid.UUID) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *ConversationStore) Create(_ context.Context, c *store.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := convKey{c.ChannelID, c.Platform, c.ExternalUserID, c.Kind}
	if _, exists := s.byKey[key]; exists {
		return store.ErrDuplicate
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.byKey[key] = c.ID
	s.byID[c.ID] = *c
	return nil
}

func (s *ConversationStore) Update(_ context.Context, c *store.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	s.byID[c.ID] = *c
	return nil
}

// All returns every stored conversation. Test helper.
func (s *ConversationStore) All() []store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Conversation, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type extKey struct {
	channelID  uuid.UUID
	externalID string
}

type MessageStore struct {
	mu       sync.RWMutex
	messages []store.Message
	seen     map[extKey]bool
}

func NewMessageStore() *MessageStore {
	return &MessageStore{seen: make(map[extKey]bool)}
}

func (s *MessageStore) Insert(_ context.Context, m *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ExternalID != "" {
		key := extKey{m.ChannelID, m.ExternalID}
		if s.seen[key] {
			return store.ErrDuplicate
		}
		s.seen[key] = true
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.Must(uuid.NewV7())
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MessageStore) ExistsByExternalID(_ context.Context, channelID uuid.UUID, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[extKey{channelID, externalID}], nil
}

func (s *MessageStore) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

// All returns every stored message. Test helper.
func (s *MessageStore) All() []store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

type CommentStore struct {
	mu       sync.RWMutex
	comments []store.Comment
	seen     map[extKey]int // index into comments
}

func NewCommentStore() *CommentStore {
	return &CommentStore{seen: make(map[extKey]int)}
}

func (s *CommentStore) Insert(_ context.Context, c *store.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := extKey{c.ChannelID, c.ExternalID}
	if _, dup := s.seen[key]; dup {
		return store.ErrDuplicate
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV7())
	}
	s.comments = append(s.comments, *c)
	s.seen[key] = len(s.comments) - 1
	return nil
}

func (s *CommentStore) ExistsByExternalID(_ context.Context, channelID uuid.UUID, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[extKey{channelID, externalID}]
	return ok, nil
}

func (s *CommentStore) Hide(_ context.Context, channelID uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.seen[extKey{channelID, externalID}]; ok {
		s.comments[i].Status = store.CommentHidden
	}
	return nil
}

func (s *CommentStore) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]store.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Comment
	for _, c := range s.comments {
		if c.ConversationID == conversationID {
			out = append(out, c)
		}
	}
	return out, nil
}

// All returns every stored comment. Test helper.
func (s *CommentStore) All() []store.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Comment, len(s.comments))
	copy(out, s.comments)
	return out
}
