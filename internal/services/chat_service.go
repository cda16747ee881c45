package services

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/assembler"
	"github.com/markdave123-py/docchat/internal/core/tokens"
	"github.com/markdave123-py/docchat/internal/models"
)

// TitleMaxRunes bounds a conversation title derived from its first message.
const TitleMaxRunes = 100

type Retriever interface {
	Retrieve(ctx context.Context, query, userID string, topK int) ([]models.ScoredChunk, error)
}

type ResponseGenerator interface {
	Generate(ctx context.Context, query string, chunks []models.ScoredChunk, history []core.ChatTurn) (string, error)
	GenerateStream(ctx context.Context, query string, chunks []models.ScoredChunk, history []core.ChatTurn) iter.Seq2[string, error]
}

type ChatService struct {
	db              core.DbClient
	retriever       Retriever
	generator       ResponseGenerator
	counter         tokens.Counter
	topK            int
	memoryMaxTokens int
}

func NewChatService(db core.DbClient, r Retriever, g ResponseGenerator, counter tokens.Counter, topK, memoryMaxTokens int) *ChatService {
	return &ChatService{
		db:              db,
		retriever:       r,
		generator:       g,
		counter:         counter,
		topK:            topK,
		memoryMaxTokens: memoryMaxTokens,
	}
}

type ChatResult struct {
	ConversationID string   `json:"conversation_id"`
	Response       string   `json:"response"`
	Sources        []string `json:"sources"`
}

// ChatEvent is one step of a streamed answer: Sources first, then Token
// fragments, then Done carrying the persisted result.
type ChatEvent struct {
	Sources []string
	Token   string
	Done    *ChatResult
}

type ConversationView struct {
	ID        string           `json:"id"`
	Title     *string          `json:"title"`
	CreatedAt time.Time        `json:"created_at"`
	Messages  []models.Message `json:"messages"`
}

// turn is the prepared state of one exchange before generation.
type turn struct {
	userID  string
	query   string
	conv    *models.Conversation
	isNew   bool
	history []core.ChatTurn
	chunks  []models.ScoredChunk
}

func (t *turn) sources() []string {
	out := make([]string, len(t.chunks))
	for i, c := range t.chunks {
		out[i] = c.Content
	}
	return out
}

// prepare resolves the conversation, then loads history and retrieves chunks
// concurrently. History is only used when continuing a conversation.
func (s *ChatService) prepare(ctx context.Context, userID, query, conversationID string) (*turn, error) {
	t := &turn{userID: userID, query: query}

	if conversationID != "" {
		if err := knownID("conversation", conversationID); err != nil {
			return nil, err
		}
		conv, err := s.db.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != userID {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, core.ErrNotFound)
		}
		t.conv = conv
	} else {
		title := truncateRunes(query, TitleMaxRunes)
		t.conv = &models.Conversation{ID: uuid.NewString(), UserID: userID, Title: &title, CreatedAt: time.Now().UTC()}
		t.isNew = true
	}

	g, gctx := errgroup.WithContext(ctx)
	if !t.isNew {
		g.Go(func() error {
			msgs, err := s.db.ListMessages(gctx, t.conv.ID, true)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			t.history = assembler.BuildConversationHistory(s.counter, msgs, s.memoryMaxTokens)
			return nil
		})
	}
	g.Go(func() error {
		chunks, err := s.retriever.Retrieve(gctx, query, userID, s.topK)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		t.chunks = chunks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// persist writes the exchange (and a new conversation) in one transaction.
func (s *ChatService) persist(ctx context.Context, t *turn, answer string) (*ChatResult, error) {
	now := time.Now().UTC()
	userMsg := &models.Message{
		ID: uuid.NewString(), ConversationID: t.conv.ID, UserID: t.userID,
		Role: models.RoleUser, Content: t.query, CreatedAt: now,
	}
	assistantMsg := &models.Message{
		ID: uuid.NewString(), ConversationID: t.conv.ID, UserID: t.userID,
		Role: models.RoleAssistant, Content: answer, CreatedAt: now,
	}

	var newConv *models.Conversation
	if t.isNew {
		newConv = t.conv
	}
	if err := s.db.SaveChatTurn(ctx, newConv, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("save chat turn: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"conversation_id": t.conv.ID,
		"user_id":         t.userID,
		"sources":         len(t.chunks),
		"history_turns":   len(t.history),
	}).Info("chat turn saved")

	return &ChatResult{ConversationID: t.conv.ID, Response: answer, Sources: t.sources()}, nil
}

// Chat answers query from userID's documents. An empty conversationID starts
// a new conversation.
func (s *ChatService) Chat(ctx context.Context, userID, query, conversationID string) (*ChatResult, error) {
	t, err := s.prepare(ctx, userID, query, conversationID)
	if err != nil {
		return nil, err
	}
	answer, err := s.generator.Generate(ctx, query, t.chunks, t.history)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, t, answer)
}

// ChatStream is Chat as a sequence of events. The exchange is persisted only
// after the model stream is exhausted; an error or an abandoned iteration
// leaves storage untouched.
func (s *ChatService) ChatStream(ctx context.Context, userID, query, conversationID string) iter.Seq2[ChatEvent, error] {
	return func(yield func(ChatEvent, error) bool) {
		t, err := s.prepare(ctx, userID, query, conversationID)
		if err != nil {
			yield(ChatEvent{}, err)
			return
		}
		if !yield(ChatEvent{Sources: t.sources()}, nil) {
			return
		}

		var sb strings.Builder
		for frag, err := range s.generator.GenerateStream(ctx, query, t.chunks, t.history) {
			if err != nil {
				yield(ChatEvent{}, err)
				return
			}
			sb.WriteString(frag)
			if !yield(ChatEvent{Token: frag}, nil) {
				return
			}
		}

		res, err := s.persist(ctx, t, sb.String())
		if err != nil {
			yield(ChatEvent{}, err)
			return
		}
		yield(ChatEvent{Done: res}, nil)
	}
}

// GetConversation returns a conversation of userID with messages oldest first.
func (s *ChatService) GetConversation(ctx context.Context, userID, id string) (*ConversationView, error) {
	if err := knownID("conversation", id); err != nil {
		return nil, err
	}
	conv, err := s.db.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	msgs, err := s.db.ListMessages(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &ConversationView{ID: conv.ID, Title: conv.Title, CreatedAt: conv.CreatedAt, Messages: msgs}, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
