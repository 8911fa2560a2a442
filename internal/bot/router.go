package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/psds-microservice/intake-bot/internal/config"
	"github.com/psds-microservice/intake-bot/internal/errs"
	"github.com/psds-microservice/intake-bot/internal/form"
	"github.com/psds-microservice/intake-bot/internal/model"
	"github.com/psds-microservice/intake-bot/internal/notify"
	"github.com/psds-microservice/intake-bot/internal/store"
	"github.com/psds-microservice/intake-bot/internal/userstate"
	"github.com/rs/zerolog"
)

const (
	msgAlreadyFilling   = "Вы уже заполняете форму."
	msgNeedFormFirst    = "Сначала нужно заполнить форму. Нажмите \"Заполнить заявку\", чтобы начать."
	msgFormNotDone      = "Форма еще не заполнена полностью. "
	msgCreateFailed     = "Произошла ошибка при создании заявки. Пожалуйста, попробуйте снова или свяжитесь с администратором."
	msgNoTickets        = "У вас пока нет заявок. Хотите создать новую?"
	msgBadIndex         = "Некорректный номер заявки. Пожалуйста, используйте команду 'Мои заявки' для просмотра списка."
	msgTicketNotFound   = "Заявка не найдена или у вас нет доступа к ней."
	msgNoDeleteRights   = "Заявка не найдена или у вас нет прав на её удаление."
	msgChooseFirst      = "Пожалуйста, сначала выберите заявку, которую хотите удалить, в разделе 'Мои заявки'."
	msgNoPendingDelete  = "Не найдено заявок, ожидающих удаления. Возможно, время ожидания истекло."
	msgDeleteCancelled  = "Удаление заявки отменено."
	msgDeleteFailed     = "Не удалось удалить заявку. Возможно, она была уже удалена или у вас нет прав на её удаление."
	msgStorageError     = "Произошла ошибка. Пожалуйста, попробуйте позже."
	msgUnknown          = "Неизвестная команда. Используйте клавиатуру или команды:\n- Заполнить заявку\n- Мои заявки\nНажмите \"Начать\", если вы потерялись."
	msgConfirmDeleteFmt = "Вы уверены, что хотите удалить заявку %s? Это действие нельзя отменить."
	msgDeletedFmt       = "Заявка %s успешно удалена."
	msgTicketIDFmt      = "Идентификатор вашей заявки: %s"
)

const lockShards = 64

// Router принимает разобранное входящее сообщение и решает, какую операцию
// выполнить. Свободный текст разбирается по фиксированному приоритету:
// открытая форма, ожидающее подтверждения удаление, номер заявки из
// последнего списка, полный идентификатор, фраза удаления, fallback.
type Router struct {
	cfg      *config.Config
	forms    *form.Manager
	state    *userstate.Store
	tickets  store.TicketStore
	notifier notify.Notifier
	log      zerolog.Logger

	// Сообщения одного пользователя обрабатываются строго по одному:
	// шардированный набор мьютексов по ID пользователя.
	locks [lockShards]sync.Mutex
}

func NewRouter(cfg *config.Config, forms *form.Manager, state *userstate.Store, tickets store.TicketStore, notifier notify.Notifier, log zerolog.Logger) *Router {
	return &Router{
		cfg:      cfg,
		forms:    forms,
		state:    state,
		tickets:  tickets,
		notifier: notifier,
		log:      log,
	}
}

func (r *Router) userLock(userID int64) *sync.Mutex {
	return &r.locks[uint64(userID)%lockShards]
}

// Handle обрабатывает одно входящее сообщение и возвращает ответ.
// Структурные команды обходят все текстовые эвристики.
func (r *Router) Handle(ctx context.Context, in Inbound) Reply {
	mu := r.userLock(in.UserID)
	mu.Lock()
	defer mu.Unlock()

	if in.Command != "" {
		return r.dispatch(ctx, in)
	}
	return r.handleText(ctx, in)
}

func (r *Router) dispatch(ctx context.Context, in Inbound) Reply {
	switch in.Command {
	case CmdStart:
		return Reply{Text: r.cfg.WelcomeMessage, Keyboard: StartKeyboard()}
	case CmdFormStart:
		return r.startForm(in.UserID)
	case CmdCancel:
		return r.cancel(in.UserID)
	case CmdFormSubmit:
		return r.submitForm(ctx, in.UserID)
	case CmdTicketsList:
		return r.listTickets(ctx, in.UserID)
	case CmdTicketView:
		if in.TicketID == "" {
			return Reply{Text: msgTicketNotFound, Keyboard: StartKeyboard()}
		}
		return r.viewTicket(ctx, in.UserID, in.TicketID)
	case CmdTicketDelete:
		return r.promptDelete(ctx, in.UserID, in.TicketID)
	case CmdConfirmDelete:
		return r.confirmDelete(ctx, in.UserID)
	default:
		r.log.Warn().Str("command", string(in.Command)).Msg("router: unknown structured command")
		return Reply{Text: msgUnknown, Keyboard: StartKeyboard()}
	}
}

func (r *Router) handleText(ctx context.Context, in Inbound) Reply {
	userID := in.UserID
	text := strings.TrimSpace(in.Text)

	// Открытая форма имеет абсолютный приоритет: сообщение, похожее на
	// номер заявки или фразу подтверждения, не должно уничтожать прогресс.
	if r.forms.HasSession(userID) {
		res := r.forms.ProcessAnswer(userID, in.Text)
		switch res.Status {
		case form.StatusValidationError:
			return Reply{Text: res.ErrText + "\n\n" + res.Prompt, Keyboard: FormKeyboard()}
		case form.StatusComplete:
			return Reply{Text: res.Prompt, Keyboard: SubmitKeyboard()}
		default:
			return Reply{Text: res.Prompt, Keyboard: FormKeyboard()}
		}
	}

	rec, _ := r.state.Get(userID)

	if rec.PendingDelete != "" {
		switch {
		case matchPhrase(text, confirmPhrases):
			return r.confirmDelete(ctx, userID)
		case matchPhrase(text, cancelPhrases):
			r.state.Update(userID, func(s *userstate.Record) { s.PendingDelete = "" })
			return Reply{Text: msgDeleteCancelled, Keyboard: StartKeyboard()}
		}
		// не подтверждение и не отмена — пробуем остальные ветки
	}

	if reDigits.MatchString(text) && len(rec.TicketIndex) > 0 {
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > len(rec.TicketIndex) {
			return Reply{Text: msgBadIndex, Keyboard: StartKeyboard()}
		}
		return r.viewTicket(ctx, userID, rec.TicketIndex[n-1])
	}

	if looksLikeTicketID(text) {
		return r.viewTicket(ctx, userID, text)
	}

	if matchPhrase(text, deleteTriggers) {
		return r.promptDelete(ctx, userID, "")
	}

	return Reply{Text: msgUnknown, Keyboard: StartKeyboard()}
}

// startForm начинает заполнение. Повторная команда при открытой форме не
// сбрасывает прогресс, а повторяет текущий вопрос.
func (r *Router) startForm(userID int64) Reply {
	if r.forms.HasSession(userID) {
		kb := FormKeyboard()
		if r.forms.IsComplete(userID) {
			kb = SubmitKeyboard()
		}
		return Reply{Text: msgAlreadyFilling + "\n\n" + r.forms.CurrentQuestion(userID), Keyboard: kb}
	}
	question := r.forms.Start(userID)
	return Reply{Text: r.cfg.FormStartMessage + "\n\n" + question, Keyboard: FormKeyboard()}
}

// cancel отменяет ожидающее удаление, если оно есть, иначе заполнение формы.
func (r *Router) cancel(userID int64) Reply {
	if rec, ok := r.state.Get(userID); ok && rec.PendingDelete != "" {
		r.state.Update(userID, func(s *userstate.Record) { s.PendingDelete = "" })
		r.log.Debug().Int64("user_id", userID).Msg("router: pending delete cancelled")
		return Reply{Text: msgDeleteCancelled, Keyboard: StartKeyboard()}
	}
	r.forms.Cancel(userID)
	return Reply{Text: r.cfg.CancelMessage, Keyboard: StartKeyboard()}
}

func (r *Router) submitForm(ctx context.Context, userID int64) Reply {
	if !r.forms.HasSession(userID) {
		return Reply{Text: msgNeedFormFirst, Keyboard: StartKeyboard()}
	}
	if !r.forms.IsComplete(userID) {
		return Reply{Text: msgFormNotDone + r.forms.CurrentQuestion(userID), Keyboard: FormKeyboard()}
	}
	ticket, err := r.forms.Submit(ctx, userID)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Msg("router: submit failed")
		return Reply{Text: msgCreateFailed, Keyboard: StartKeyboard()}
	}
	r.notifier.TicketCreated(ctx, ticket)
	return Reply{
		Text:     r.cfg.FormCompleteMessage + "\n" + fmt.Sprintf(msgTicketIDFmt, ticket.TicketID),
		Keyboard: StartKeyboard(),
	}
}

func (r *Router) listTickets(ctx context.Context, userID int64) Reply {
	items, err := r.tickets.ListByOwner(ctx, userID)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Msg("router: list tickets failed")
		return Reply{Text: msgStorageError, Keyboard: StartKeyboard()}
	}
	if len(items) == 0 {
		return Reply{Text: msgNoTickets, Keyboard: StartKeyboard()}
	}

	ids := make([]string, len(items))
	var b strings.Builder
	b.WriteString("Ваши заявки:\n\n")
	for i, t := range items {
		ids[i] = t.TicketID
		b.WriteString(fmt.Sprintf("%d. Заявка №%s от %s\n", i+1, t.TicketID, t.CreatedAt.Format("2006-01-02")))
	}
	b.WriteString("\nДля просмотра подробной информации о заявке, напишите ее номер из списка (например, просто цифру 1) или полный идентификатор заявки.")

	// Кэш номеров живёт до следующего показа списка и хранит все ID,
	// даже когда кнопок меньше.
	r.state.Update(userID, func(s *userstate.Record) { s.TicketIndex = ids })

	return Reply{Text: b.String(), Keyboard: ListKeyboard(len(items))}
}

func (r *Router) viewTicket(ctx context.Context, userID int64, ticketID string) Reply {
	t, err := r.tickets.GetOwned(ctx, ticketID, userID)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			return Reply{Text: msgTicketNotFound, Keyboard: StartKeyboard()}
		}
		r.log.Error().Err(err).Str("ticket_id", ticketID).Msg("router: get ticket failed")
		return Reply{Text: msgStorageError, Keyboard: StartKeyboard()}
	}

	r.state.Update(userID, func(s *userstate.Record) { s.LastViewed = t.TicketID })

	return Reply{Text: renderTicket(r.cfg.Fields, t), Keyboard: TicketDetailKeyboard()}
}

// promptDelete — первая фаза удаления: проверяем принадлежность заявки и
// запоминаем её до подтверждения. Пустой ticketID означает "последняя
// просмотренная заявка".
func (r *Router) promptDelete(ctx context.Context, userID int64, ticketID string) Reply {
	if ticketID == "" {
		rec, ok := r.state.Get(userID)
		if !ok || rec.LastViewed == "" {
			return Reply{Text: msgChooseFirst, Keyboard: StartKeyboard()}
		}
		ticketID = rec.LastViewed
	}

	if _, err := r.tickets.GetOwned(ctx, ticketID, userID); err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			r.state.Update(userID, func(s *userstate.Record) {
				if s.LastViewed == ticketID {
					s.LastViewed = ""
				}
			})
			return Reply{Text: msgNoDeleteRights, Keyboard: StartKeyboard()}
		}
		r.log.Error().Err(err).Str("ticket_id", ticketID).Msg("router: delete precheck failed")
		return Reply{Text: msgStorageError, Keyboard: StartKeyboard()}
	}

	r.state.Update(userID, func(s *userstate.Record) { s.PendingDelete = ticketID })
	return Reply{Text: fmt.Sprintf(msgConfirmDeleteFmt, ticketID), Keyboard: ConfirmDeleteKeyboard()}
}

// confirmDelete — вторая фаза. Принадлежность проверяется ещё раз самим
// условным DELETE: состояние могло устареть между ходами. Ожидание
// очищается независимо от результата; уведомление уходит только при успехе.
func (r *Router) confirmDelete(ctx context.Context, userID int64) Reply {
	rec, ok := r.state.Get(userID)
	if !ok || rec.PendingDelete == "" {
		return Reply{Text: msgNoPendingDelete, Keyboard: StartKeyboard()}
	}
	ticketID := rec.PendingDelete
	r.state.Update(userID, func(s *userstate.Record) { s.PendingDelete = "" })

	deleted, err := r.tickets.Delete(ctx, ticketID, userID)
	if err != nil {
		r.log.Error().Err(err).Str("ticket_id", ticketID).Msg("router: delete failed")
		return Reply{Text: msgStorageError, Keyboard: StartKeyboard()}
	}
	if !deleted {
		return Reply{Text: msgDeleteFailed, Keyboard: StartKeyboard()}
	}

	r.state.Update(userID, func(s *userstate.Record) {
		if s.LastViewed == ticketID {
			s.LastViewed = ""
		}
	})
	r.log.Info().Str("ticket_id", ticketID).Int64("user_id", userID).Msg("router: ticket deleted")
	r.notifier.TicketDeleted(ctx, ticketID, userID)
	return Reply{Text: fmt.Sprintf(msgDeletedFmt, ticketID), Keyboard: StartKeyboard()}
}

// renderTicket — карточка заявки: поля в порядке вопросов формы, затем
// неизвестные поля по алфавиту, затем дата создания.
func renderTicket(fields []model.FieldSpec, t *model.Ticket) string {
	answers := t.Answers.Data()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Информация о заявке %s:\n\n", t.TicketID))

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if v, ok := answers[f.Name]; ok {
			b.WriteString(f.Name + ": " + v + "\n")
			seen[f.Name] = true
		}
	}
	extra := make([]string, 0)
	for k := range answers {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		b.WriteString(k + ": " + answers[k] + "\n")
	}

	b.WriteString("\nДата создания: " + t.CreatedAt.Format("2006-01-02 15:04:05") + "\n")
	return b.String()
}
