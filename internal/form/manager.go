package form

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/psds-microservice/intake-bot/internal/errs"
	"github.com/psds-microservice/intake-bot/internal/model"
	"github.com/psds-microservice/intake-bot/internal/store"
	"github.com/psds-microservice/intake-bot/internal/validation"
	"github.com/rs/zerolog"
)

// Тексты вопросов формы. Остальные сообщения бота живут в конфигурации.
const (
	questionFormat = "Пожалуйста, укажите: %s"
	completePrompt = "На все вопросы получены ответы. Нажмите \"Отправить\", чтобы создать заявку."
	noSessionText  = "Пожалуйста, сначала начните заполнение формы."
)

// Status — результат обработки ответа пользователя.
type Status int

const (
	StatusNoSession Status = iota
	StatusValidationError
	StatusNextQuestion
	StatusComplete
)

// Result — статус обработки плюс текст, который нужно показать пользователю.
// При StatusValidationError Prompt содержит тот же вопрос, ErrText — причину отказа.
type Result struct {
	Status  Status
	Prompt  string
	ErrText string
}

// Session — состояние заполнения формы одним пользователем.
// CurrentField всегда в диапазоне [0, len(fields)]; len(fields) означает
// "форма заполнена, ждём отправки".
type Session struct {
	CurrentField        int
	Answers             map[string]string
	StartedAt           time.Time
	LastValidationError string
}

// Manager хранит формы всех пользователей и создаёт заявку при отправке.
// Доступ к map защищён мьютексом; блокировка одного пользователя на всё
// время обработки входящего сообщения — ответственность роутера.
type Manager struct {
	mu       sync.Mutex
	fields   []model.FieldSpec
	sessions map[int64]*Session

	validator *validation.Engine
	tickets   store.TicketStore
	log       zerolog.Logger
}

func NewManager(fields []model.FieldSpec, validator *validation.Engine, tickets store.TicketStore, log zerolog.Logger) *Manager {
	return &Manager{
		fields:    fields,
		sessions:  make(map[int64]*Session),
		validator: validator,
		tickets:   tickets,
		log:       log,
	}
}

// Start создаёт новую форму и возвращает первый вопрос. Существующая форма
// сбрасывается без вопросов — проверять, не идёт ли уже заполнение, должен
// вызывающий код (роутер), иначе случайное нажатие кнопки уничтожит прогресс.
func (m *Manager) Start(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	answers := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		answers[f.Name] = ""
	}
	m.sessions[userID] = &Session{
		Answers:   answers,
		StartedAt: time.Now().UTC(),
	}
	m.log.Debug().Int64("user_id", userID).Msg("form: session started")
	return fmt.Sprintf(questionFormat, m.fields[0].Name)
}

// HasSession сообщает, заполняет ли пользователь форму прямо сейчас.
func (m *Manager) HasSession(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// CurrentQuestion возвращает текущий вопрос, приглашение к отправке для
// заполненной формы или подсказку начать заполнение, если формы нет.
func (m *Manager) CurrentQuestion(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return noSessionText
	}
	if s.CurrentField >= len(m.fields) {
		return completePrompt
	}
	return fmt.Sprintf(questionFormat, m.fields[s.CurrentField].Name)
}

// ProcessAnswer проверяет ответ на текущий вопрос. Невалидный ответ не
// продвигает форму: тот же вопрос будет задан снова вместе с причиной отказа.
func (m *Manager) ProcessAnswer(userID int64, raw string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Result{Status: StatusNoSession, Prompt: noSessionText}
	}
	s.LastValidationError = ""

	if s.CurrentField >= len(m.fields) {
		return Result{Status: StatusComplete, Prompt: completePrompt}
	}

	field := m.fields[s.CurrentField]
	answer := trimAnswer(raw)
	if err := m.validator.Validate(field.Rule, answer); err != nil {
		s.LastValidationError = err.Error()
		return Result{
			Status:  StatusValidationError,
			Prompt:  fmt.Sprintf(questionFormat, field.Name),
			ErrText: err.Error(),
		}
	}

	s.Answers[field.Name] = answer
	s.CurrentField++

	if s.CurrentField >= len(m.fields) {
		return Result{Status: StatusComplete, Prompt: completePrompt}
	}
	return Result{
		Status: StatusNextQuestion,
		Prompt: fmt.Sprintf(questionFormat, m.fields[s.CurrentField].Name),
	}
}

// IsComplete — получены ли ответы на все вопросы.
func (m *Manager) IsComplete(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return ok && s.CurrentField >= len(m.fields)
}

// Cancel удаляет форму пользователя. Повторный вызов безопасен.
func (m *Manager) Cancel(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Submit создаёт заявку из заполненной формы. При ошибке хранилища форма
// сохраняется: пользователь сможет повторить отправку, не вводя ответы заново.
func (m *Manager) Submit(ctx context.Context, userID int64) (*model.Ticket, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.ErrNoSession
	}
	if s.CurrentField < len(m.fields) {
		m.mu.Unlock()
		return nil, errs.ErrFormIncomplete
	}
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	m.mu.Unlock()

	ticket := store.NewTicket(userID, answers)
	if err := m.tickets.Create(ctx, ticket); err != nil {
		m.log.Error().Err(err).Int64("user_id", userID).Msg("form: ticket create failed, session kept")
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()

	m.log.Info().Str("ticket_id", ticket.TicketID).Int64("user_id", userID).Msg("form: ticket created")
	return ticket, nil
}

func trimAnswer(s string) string {
	return strings.TrimSpace(s)
}
