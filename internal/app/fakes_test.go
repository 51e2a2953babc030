package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/repository"
)

type memUsers struct {
	mu     sync.Mutex
	users  []*model.User
	logins int
}

func (m *memUsers) Create(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uint(len(m.users) + 1)
	cp := *user
	m.users = append(m.users, &cp)
	return nil
}

func (m *memUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetByUsername(username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username })
}

func (m *memUsers) GetByEmail(email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memUsers) GetByID(id uint) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUsers) TouchLastLogin(id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins++
	return nil
}

type memTranscripts struct {
	mu    sync.Mutex
	items map[uint]*model.Transcript
	next  uint
}

func newMemTranscripts() *memTranscripts {
	return &memTranscripts{items: make(map[uint]*model.Transcript)}
}

func (m *memTranscripts) Create(t *model.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	t.ID = m.next
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.ChunkStatus == "" {
		t.ChunkStatus = model.ChunkStatusPending
	}
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *memTranscripts) ListDocuments(filter repository.TranscriptFilter) ([]model.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transcript
	for _, t := range m.items {
		if filter.UserID != 0 && t.UserID != filter.UserID {
			continue
		}
		if filter.Source != "" && t.Source != filter.Source {
			continue
		}
		if filter.Untagged && t.Source != "" {
			continue
		}
		cp := *t
		if !filter.WithContent {
			cp.Content = ""
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTranscripts) GetByID(id uint) (*model.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTranscripts) GetByIDAndUserID(id, userID uint) (*model.Transcript, error) {
	t, err := m.GetByID(id)
	if t == nil || err != nil || t.UserID != userID {
		return nil, err
	}
	return t, nil
}

func (m *memTranscripts) UpdateSource(id uint, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.items[id]; ok {
		t.Source = source
	}
	return nil
}

func (m *memTranscripts) UpdateChunkState(id uint, status string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.items[id]; ok {
		t.ChunkStatus, t.ChunkCount = status, count
	}
	return nil
}

func (m *memTranscripts) DeleteByIDAndUserID(id, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.items[id]; ok && t.UserID == userID {
		delete(m.items, id)
	}
	return nil
}

type memChunks struct {
	mu     sync.Mutex
	chunks []model.TranscriptChunk
	next   uint
}

func (m *memChunks) ReplaceTree(transcriptID uint, records []repository.ChunkRecord) ([]model.TranscriptChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.TranscriptID != transcriptID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept

	out := make([]model.TranscriptChunk, len(records))
	for i, rec := range records {
		c := rec.Chunk
		m.next++
		c.ID = m.next
		c.TranscriptID = transcriptID
		c.ParentID = nil
		if rec.ParentIndex >= 0 {
			if rec.ParentIndex >= i {
				return nil, errors.New("forward parent reference")
			}
			pid := out[rec.ParentIndex].ID
			c.ParentID = &pid
		}
		out[i] = c
		m.chunks = append(m.chunks, c)
	}
	return out, nil
}

func (m *memChunks) ListChunks(transcriptIDs []uint) ([]model.TranscriptChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uint]bool, len(transcriptIDs))
	for _, id := range transcriptIDs {
		want[id] = true
	}
	var out []model.TranscriptChunk
	for _, c := range m.chunks {
		if want[c.TranscriptID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memChunks) GetByID(id uint) (*model.TranscriptChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chunks {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

type memFeedback struct {
	mu    sync.Mutex
	votes map[[2]uint]bool // {user, chunk} -> relevant
}

func newMemFeedback() *memFeedback {
	return &memFeedback{votes: make(map[[2]uint]bool)}
}

func (m *memFeedback) Upsert(fb *model.ChunkFeedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[[2]uint{fb.UserID, fb.ChunkID}] = fb.Relevant
	return nil
}

func (m *memFeedback) CountRelevant(chunkIDs []uint) (map[uint]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uint]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = true
	}
	out := make(map[uint]int)
	for key, relevant := range m.votes {
		if relevant && want[key[1]] {
			out[key[1]]++
		}
	}
	return out, nil
}

type memConversations struct {
	mu      sync.Mutex
	items   map[uint]*model.Conversation
	next    uint
	touched int
}

func newMemConversations() *memConversations {
	return &memConversations{items: make(map[uint]*model.Conversation)}
}

func (m *memConversations) Create(c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c.ID = m.next
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *memConversations) ListByUserID(userID uint) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Conversation
	for _, c := range m.items {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memConversations) GetByIDAndUserID(id, userID uint) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memConversations) Touch(id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	return nil
}

func (m *memConversations) DeleteByIDAndUserID(id, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

type memMessages struct {
	mu       sync.Mutex
	messages []model.Message
}

func (m *memMessages) ListByConversationID(id uint, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.messages {
		if msg.ConversationID == id {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) ListRecentByConversationID(id uint, limit int) ([]model.Message, error) {
	all, _ := m.ListByConversationID(id, 0)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memMessages) DeleteByConversationID(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ConversationID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

// syncPublisher persists straight into memMessages, standing in for queue and worker.
type syncPublisher struct {
	store *memMessages
	err   error
}

func (p *syncPublisher) Publish(ctx context.Context, msg model.Message) error {
	if p.err != nil {
		return p.err
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.messages = append(p.store.messages, msg)
	return nil
}

type jobRecorder struct {
	jobs []model.ChunkJob
	err  error
}

func (r *jobRecorder) Publish(ctx context.Context, job model.ChunkJob) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

type fakeGenerator struct {
	reply    string
	err      error
	system   string
	messages []ai.ChatMessage
}

func (g *fakeGenerator) Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	g.messages = messages
	return g.reply, g.err
}

func (g *fakeGenerator) Generate(ctx context.Context, cfg ai.ChatConfig, promptContext []ai.ChatMessage, systemInstructions string) (string, error) {
	g.system = systemInstructions
	return g.Complete(ctx, cfg, promptContext)
}

func (g *fakeGenerator) StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	g.messages = messages
	if g.err != nil {
		return "", g.err
	}
	for _, part := range strings.SplitAfter(g.reply, " ") {
		if err := onChunk(part); err != nil {
			return "", err
		}
	}
	return g.reply, nil
}

// keywordEmbedder maps text onto two axes: mentions of "seller" and mentions of "bank".
type keywordEmbedder struct {
	err   error
	calls int
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "seller")) + 0.01,
		float32(strings.Count(lower, "bank")) + 0.01,
	}
}

func (e *keywordEmbedder) Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}
