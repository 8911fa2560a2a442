package notify

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/intake-bot/internal/model"
	"github.com/rs/zerolog"
)

// Notifier получает события жизненного цикла заявок. Все реализации
// best-effort: ошибки логируются и никогда не доходят до пользователя.
type Notifier interface {
	TicketCreated(ctx context.Context, t *model.Ticket)
	TicketDeleted(ctx context.Context, ticketID string, userID int64)
}

// Sender — исходящий канал к мессенджеру; реализуется vk.Client.
type Sender interface {
	SendText(ctx context.Context, peerID int64, text string) error
}

// AdminNotifier шлёт уведомления в чат операторов и личные сообщения
// администраторов по шаблонам из конфигурации.
type AdminNotifier struct {
	sender          Sender
	peers           []int64
	fields          []model.FieldSpec
	createdTemplate string
	deletedTemplate string
	log             zerolog.Logger
}

func NewAdminNotifier(sender Sender, chatID int64, adminIDs []int64, fields []model.FieldSpec, createdTemplate, deletedTemplate string, log zerolog.Logger) *AdminNotifier {
	peers := make([]int64, 0, len(adminIDs)+1)
	if chatID != 0 {
		peers = append(peers, chatID)
	}
	peers = append(peers, adminIDs...)
	return &AdminNotifier{
		sender:          sender,
		peers:           peers,
		fields:          fields,
		createdTemplate: createdTemplate,
		deletedTemplate: deletedTemplate,
		log:             log,
	}
}

func (n *AdminNotifier) TicketCreated(ctx context.Context, t *model.Ticket) {
	if len(n.peers) == 0 {
		n.log.Debug().Msg("notify: no admin peers configured, skipping created notification")
		return
	}
	text := renderTemplate(n.createdTemplate, t.TicketID, t.UserID, formSummary(n.fields, t.Answers.Data()))
	n.broadcast(ctx, text, t.TicketID)
}

func (n *AdminNotifier) TicketDeleted(ctx context.Context, ticketID string, userID int64) {
	if len(n.peers) == 0 {
		n.log.Debug().Msg("notify: no admin peers configured, skipping deleted notification")
		return
	}
	text := renderTemplate(n.deletedTemplate, ticketID, userID, "")
	n.broadcast(ctx, text, ticketID)
}

func (n *AdminNotifier) broadcast(ctx context.Context, text, ticketID string) {
	for _, peer := range n.peers {
		if err := n.sender.SendText(ctx, peer, text); err != nil {
			n.log.Error().Err(err).Int64("peer", peer).Str("ticket_id", ticketID).
				Msg("notify: send to admin failed")
		}
	}
}

// renderTemplate подставляет плейсхолдеры {ticket_id}, {user_id},
// {user_link}, {form_summary} в шаблон уведомления.
func renderTemplate(tmpl, ticketID string, userID int64, summary string) string {
	uid := strconv.FormatInt(userID, 10)
	return strings.NewReplacer(
		"{ticket_id}", ticketID,
		"{user_id}", uid,
		"{user_link}", "vk.com/id"+uid,
		"{form_summary}", summary,
	).Replace(tmpl)
}

// formSummary — краткое содержание заявки: строки "> поле: значение"
// в порядке вопросов формы; неизвестные поля добавляются в конце.
func formSummary(fields []model.FieldSpec, answers map[string]string) string {
	var b strings.Builder
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if v, ok := answers[f.Name]; ok {
			b.WriteString("> " + f.Name + ": " + v + "\n")
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
		b.WriteString("> " + k + ": " + answers[k] + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Multi рассылает событие всем вложенным получателям.
type Multi []Notifier

func (m Multi) TicketCreated(ctx context.Context, t *model.Ticket) {
	for _, n := range m {
		n.TicketCreated(ctx, t)
	}
}

func (m Multi) TicketDeleted(ctx context.Context, ticketID string, userID int64) {
	for _, n := range m {
		n.TicketDeleted(ctx, ticketID, userID)
	}
}

// Async выполняет уведомление в отдельной горутине с собственным таймаутом,
// чтобы медленный получатель не задерживал ответ пользователю.
type Async struct {
	next    Notifier
	timeout time.Duration
}

func NewAsync(next Notifier) *Async {
	return &Async{next: next, timeout: 10 * time.Second}
}

func (a *Async) TicketCreated(_ context.Context, t *model.Ticket) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.next.TicketCreated(ctx, t)
	}()
}

func (a *Async) TicketDeleted(_ context.Context, ticketID string, userID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.next.TicketDeleted(ctx, ticketID, userID)
	}()
}
