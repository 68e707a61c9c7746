package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
)

// Memory implements all repositories in process memory behind one mutex,
// mirroring the coarse single-writer discipline of the durable store. It
// backs the service tests.
type Memory struct {
	mu sync.Mutex

	nextSessionID int64
	nextPartID    int64
	sessions      map[int64]*models.UploadSession
	sessionParts  map[int64][]models.SessionPart

	items map[string]*models.CatalogItem
	parts map[string][]models.Part

	chats map[int64]struct{}

	// Events collects everything written to the outbox, in write order.
	Events []models.DomainEvent
}

func NewMemory() *Memory {
	return &Memory{
		sessions:     make(map[int64]*models.UploadSession),
		sessionParts: make(map[int64][]models.SessionPart),
		items:        make(map[string]*models.CatalogItem),
		parts:        make(map[string][]models.Part),
		chats:        make(map[int64]struct{}),
	}
}

func (m *Memory) CreateSession(ctx context.Context, uploaderID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.UploaderID == uploaderID {
			delete(m.sessions, id)
			delete(m.sessionParts, id)
		}
	}

	m.nextSessionID++
	id := m.nextSessionID
	m.sessions[id] = &models.UploadSession{
		ID:         id,
		UploaderID: uploaderID,
		Status:     models.SessionInProgress,
		CreatedAt:  time.Now(),
	}
	return id, nil
}

func (m *Memory) GetSession(ctx context.Context, id int64) (*models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) GetActiveSession(ctx context.Context, uploaderID int64) (*models.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UploaderID == uploaderID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (m *Memory) SetTitle(ctx context.Context, id int64, title string) error {
	return m.mutateSession(id, func(s *models.UploadSession) { s.Title = &title })
}

func (m *Memory) SetDescription(ctx context.Context, id int64, description string) error {
	return m.mutateSession(id, func(s *models.UploadSession) { s.Description = &description })
}

func (m *Memory) SetCover(ctx context.Context, id int64, coverRef string) error {
	return m.mutateSession(id, func(s *models.UploadSession) {
		s.CoverRef = &coverRef
		s.Status = models.SessionUploadingParts
	})
}

func (m *Memory) mutateSession(id int64, fn func(*models.UploadSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	fn(s)
	return nil
}

func (m *Memory) AppendPart(ctx context.Context, id int64, messageRef string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return 0, models.ErrSessionNotFound
	}
	m.nextPartID++
	m.sessionParts[id] = append(m.sessionParts[id], models.SessionPart{
		ID:         m.nextPartID,
		SessionID:  id,
		MessageRef: messageRef,
	})
	return len(m.sessionParts[id]), nil
}

func (m *Memory) ListParts(ctx context.Context, id int64) ([]models.SessionPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, models.ErrSessionNotFound
	}
	out := make([]models.SessionPart, len(m.sessionParts[id]))
	copy(out, m.sessionParts[id])
	return out, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.sessionParts, id)
	return nil
}

func (m *Memory) GetItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, models.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *Memory) ListPage(ctx context.Context, page, pageSize int, query string) ([]models.CatalogItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(query)
	var all []models.CatalogItem
	for _, it := range m.items {
		if q == "" || strings.Contains(strings.ToLower(it.Title), q) {
			all = append(all, *it)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	offset := (page - 1) * pageSize
	if offset >= total {
		return nil, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *Memory) ListOrderedParts(ctx context.Context, itemID string) ([]models.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[itemID]; !ok {
		return nil, models.ErrItemNotFound
	}
	out := make([]models.Part, len(m.parts[itemID]))
	copy(out, m.parts[itemID])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateField(ctx context.Context, id, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return models.ErrItemNotFound
	}
	switch field {
	case "title":
		it.Title = value
	case "description":
		it.Description = value
	default:
		return models.ErrUnknownField
	}
	return nil
}

func (m *Memory) DeleteItem(ctx context.Context, id string, event models.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return models.ErrItemNotFound
	}
	delete(m.items, id)
	delete(m.parts, id)
	if event != nil {
		m.Events = append(m.Events, event)
	}
	return nil
}

func (m *Memory) Finalize(ctx context.Context, sessionID int64, item *models.CatalogItem, event models.DomainEvent) error {
	if item == nil {
		return models.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return models.ErrSessionNotFound
	}

	cp := *item
	m.items[item.ID] = &cp
	for _, sp := range m.sessionParts[sessionID] {
		m.nextPartID++
		m.parts[item.ID] = append(m.parts[item.ID], models.Part{
			ID:         m.nextPartID,
			ItemID:     item.ID,
			MessageRef: sp.MessageRef,
		})
	}
	delete(m.sessions, sessionID)
	delete(m.sessionParts, sessionID)
	if event != nil {
		m.Events = append(m.Events, event)
	}
	return nil
}

func (m *Memory) RegisterChat(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chatID] = struct{}{}
	return nil
}

func (m *Memory) ListChats(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.chats))
	for id := range m.chats {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) CountChats(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats), nil
}
