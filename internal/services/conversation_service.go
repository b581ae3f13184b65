// Package services – ConversationService
//
// This file implements the conversation controller: starting and loading
// conversations, appending turns with write-through persistence, the
// send-message state machine and model selection.
//
// Send runs idle → sending → awaiting_reply → idle. The session lock is
// released while the gateway call runs so that reads and "new chat" proceed.
// A reply that arrives after the conversation was replaced is still stored
// under the conversation it answers, but is not added to the new one.
//
// Observability: public methods are OpenTelemetry-instrumented; gateway
// outcomes are counted in chat_inference_results_total.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/domain"
	"github.com/tbourn/cot-chat/internal/inference"
	"github.com/tbourn/cot-chat/internal/repo"
)

// maxSessionIDLen mirrors the width of the session_id column.
const maxSessionIDLen = 64

// ConversationService coordinates Session state, the store and the
// inference gateway.
type ConversationService struct {
	DB      *gorm.DB
	Gateway inference.Gateway

	// Models lists the selectable model names. Empty allows any.
	Models []string

	// Optional guards
	MaxPromptRunes int
	TitleMaxLen    int
}

// NewConversationService constructs a ConversationService with defaults for
// title clipping.
func NewConversationService(db *gorm.DB, gw inference.Gateway, models []string) *ConversationService {
	return &ConversationService{
		DB:          db,
		Gateway:     gw,
		Models:      models,
		TitleMaxLen: 50,
	}
}

// StartNewSession gives the connection a fresh conversation id and an empty
// turn list. It never touches the store and is valid in any state.
func (s *ConversationService) StartNewSession(sess *Session) SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.replaceLocked(newSessionID(), []domain.Message{})
	return sess.viewLocked()
}

// LoadSession makes sessionID the active conversation, replacing the
// in-memory turns with its stored history. An id with no rows yields an
// empty conversation.
func (s *ConversationService) LoadSession(ctx context.Context, sess *Session, sessionID string) (SessionView, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "LoadSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLen {
		return SessionView{}, ErrInvalidSessionID
	}
	msgs, err := repo.FetchHistory(ctx, s.DB, sessionID)
	if err != nil {
		span.RecordError(err)
		return SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.replaceLocked(sessionID, msgs)
	return sess.viewLocked(), nil
}

// AppendAndPersist records one turn in the active conversation and appends
// it to the in-memory list. The first user turn of a conversation also
// writes its title.
func (s *ConversationService) AppendAndPersist(ctx context.Context, sess *Session, role, content string) (*domain.Message, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.appendLocked(ctx, sess, role, content)
}

func (s *ConversationService) appendLocked(ctx context.Context, sess *Session, role, content string) (*domain.Message, error) {
	m, err := repo.RecordMessage(ctx, s.DB, sess.id, role, content, time.Time{})
	if err != nil {
		return nil, err
	}
	sess.messages = append(sess.messages, *m)

	if role == domain.RoleUser && !sess.titled {
		if _, err := repo.RecordTitleIfAbsent(ctx, s.DB, sess.id, MakeTitle(content, s.TitleMaxLen)); err != nil {
			return m, err
		}
		sess.titled = true
	}
	return m, nil
}

// Send submits text on behalf of the connection and blocks until the bot
// turn is stored. The returned view is taken after the reply was appended.
//
// Errors:
//   - ErrEmptyPrompt / ErrTooLong: nothing changes.
//   - ErrSendInFlight: the connection is already awaiting a reply.
//   - Store errors propagate. Gateway failures never do; they become the
//     bot turn's text via inference.Result.Display.
func (s *ConversationService) Send(ctx context.Context, sess *Session, text string) (SessionView, *domain.Message, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Send")
	defer span.End()

	text = normalizePrompt(text)
	if text == "" {
		return SessionView{}, nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(text) > s.MaxPromptRunes {
		return SessionView{}, nil, ErrTooLong
	}

	sess.mu.Lock()
	if sess.state != StateIdle {
		sess.mu.Unlock()
		return SessionView{}, nil, ErrSendInFlight
	}
	sess.state = StateSending
	sessionID, model := sess.id, sess.model
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("inference.model", model))

	if _, err := s.appendLocked(ctx, sess, domain.RoleUser, text); err != nil {
		sess.state = StateIdle
		sess.mu.Unlock()
		span.RecordError(err)
		return SessionView{}, nil, err
	}
	sess.state = StateAwaitingReply
	sess.pending = sessionID
	sess.mu.Unlock()

	start := time.Now()
	res := s.Gateway.Infer(ctx, text, model)
	inferenceLatency.Observe(time.Since(start).Seconds())
	inferenceResults.WithLabelValues(res.Kind.String()).Inc()
	span.SetAttributes(attribute.String("inference.result", res.Kind.String()))
	if res.Kind != inference.KindOK {
		zerolog.Ctx(ctx).Warn().
			Str("session_id", sessionID).
			Str("result", res.Kind.String()).
			AnErr("cause", res.Err).
			Msg("inference did not return a reply")
	}

	// The reply belongs to the conversation even if the client went away.
	ctx = context.WithoutCancel(ctx)
	reply := res.Display()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.pending == sessionID {
		sess.pending = ""
		if sess.id == sessionID {
			sess.state = StateIdle
		}
	}

	// Another conversation is on screen: store the reply where it belongs.
	if sess.id != sessionID {
		m, err := repo.RecordMessage(ctx, s.DB, sessionID, domain.RoleBot, reply, time.Time{})
		if err != nil {
			span.RecordError(err)
			return SessionView{}, nil, err
		}
		return sess.viewLocked(), m, nil
	}

	m, err := s.appendLocked(ctx, sess, domain.RoleBot, reply)
	if err != nil {
		span.RecordError(err)
		return SessionView{}, nil, err
	}
	sess.reveal = m.ID
	return sess.viewLocked(), m, nil
}

// SelectModel changes the model used by later sends on this connection.
func (s *ConversationService) SelectModel(sess *Session, model string) (SessionView, error) {
	model = strings.TrimSpace(model)
	if model == "" || (len(s.Models) > 0 && !contains(s.Models, model)) {
		return SessionView{}, ErrUnknownModel
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.model = model
	return sess.viewLocked(), nil
}

// ListConversations returns a page of titled conversations, newest first,
// plus the total count. It applies defaults for invalid page/pageSize.
func (s *ConversationService) ListConversations(ctx context.Context, page, pageSize int) ([]domain.ConversationTitle, int64, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListConversations",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountConversations(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ConversationTitle{}, 0, nil
	}
	items, err := repo.ListConversations(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// History returns the stored turns of any conversation without making it
// active.
func (s *ConversationService) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "History",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLen {
		return nil, ErrInvalidSessionID
	}
	return repo.FetchHistory(ctx, s.DB, sessionID)
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
