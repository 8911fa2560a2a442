package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/intake-bot/internal/config"
	"github.com/psds-microservice/intake-bot/internal/errs"
	"github.com/psds-microservice/intake-bot/internal/form"
	"github.com/psds-microservice/intake-bot/internal/model"
	"github.com/psds-microservice/intake-bot/internal/userstate"
	"github.com/psds-microservice/intake-bot/internal/validation"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// memStore — упорядоченное хранилище заявок в памяти для тестов роутера.
type memStore struct {
	mu       sync.Mutex
	items    []*model.Ticket
	failList bool
}

func (s *memStore) Create(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.TicketID == t.TicketID {
			return errs.ErrDuplicateTicket
		}
	}
	cp := *t
	s.items = append(s.items, &cp)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.TicketID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

func (s *memStore) GetOwned(_ context.Context, id string, owner int64) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.TicketID == id && it.UserID == owner {
			cp := *it
			return &cp, nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

func (s *memStore) ListByOwner(_ context.Context, owner int64) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("storage down")
	}
	var out []model.Ticket
	for _, it := range s.items {
		if it.UserID == owner {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string, owner int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.TicketID == id && it.UserID == owner {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.TicketID == id {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (n *fakeNotifier) TicketCreated(_ context.Context, t *model.Ticket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, t.TicketID)
}

func (n *fakeNotifier) TicketDeleted(_ context.Context, ticketID string, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, ticketID)
}

type testEnv struct {
	router   *Router
	store    *memStore
	state    *userstate.Store
	notifier *fakeNotifier
	forms    *form.Manager
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.WelcomeMessage = "Добро пожаловать!"
	cfg.FormStartMessage = "Давайте начнем заполнение формы."
	cfg.FormCompleteMessage = "Спасибо! Ваша заявка создана."
	cfg.CancelMessage = "Заполнение формы отменено."
	cfg.Fields = []model.FieldSpec{
		{Name: "Имя", Rule: model.Rule{Kind: model.RuleMinLength, MinLength: 2}},
		{Name: "Email", Rule: model.Rule{
			Kind:    model.RuleRegex,
			Pattern: regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`),
		}},
	}
	return cfg
}

func newTestEnv() *testEnv {
	cfg := testConfig()
	st := &memStore{}
	state := userstate.New()
	notifier := &fakeNotifier{}
	forms := form.NewManager(cfg.Fields, validation.New(zerolog.Nop()), st, zerolog.Nop())
	return &testEnv{
		router:   NewRouter(cfg, forms, state, st, notifier, zerolog.Nop()),
		store:    st,
		state:    state,
		notifier: notifier,
		forms:    forms,
	}
}

// addTicket кладёт заявку напрямую в хранилище; created задаёт порядок в списке.
func (e *testEnv) addTicket(id string, owner int64, created time.Time) {
	_ = e.store.Create(context.Background(), &model.Ticket{
		TicketID:  id,
		UserID:    owner,
		CreatedAt: created,
		Answers:   datatypes.NewJSONType(map[string]string{"Имя": "Иван", "Email": "i@v.an"}),
	})
}

func (e *testEnv) text(userID int64, text string) Reply {
	return e.router.Handle(context.Background(), Inbound{UserID: userID, Text: text})
}

func (e *testEnv) command(userID int64, cmd Command, ticketID string) Reply {
	return e.router.Handle(context.Background(), Inbound{UserID: userID, Command: cmd, TicketID: ticketID})
}

func TestStartCommand(t *testing.T) {
	t.Parallel()
	e := newTestEnv()

	r := e.command(1, CmdStart, "")
	if r.Text != "Добро пожаловать!" {
		t.Fatalf("reply = %q", r.Text)
	}
	if len(r.Keyboard) == 0 {
		t.Fatal("start reply must carry the start keyboard")
	}
}

func TestUnknownTextFallback(t *testing.T) {
	t.Parallel()
	e := newTestEnv()

	r := e.text(1, "что-то непонятное")
	if r.Text != msgUnknown {
		t.Fatalf("reply = %q, want unknown-command fallback", r.Text)
	}
}

func TestFormStartDoesNotResetProgress(t *testing.T) {
	t.Parallel()
	e := newTestEnv()

	e.command(1, CmdFormStart, "")
	e.text(1, "Алексей")

	r := e.command(1, CmdFormStart, "")
	if !strings.Contains(r.Text, msgAlreadyFilling) {
		t.Fatalf("reply = %q, want already-filling notice", r.Text)
	}
	if !strings.Contains(r.Text, "Email") {
		t.Fatalf("reply = %q, want the current (second) question", r.Text)
	}

	// прогресс цел: следующий ответ завершает форму
	if r := e.text(1, "a@b.com"); !strings.Contains(r.Text, "Отправить") {
		t.Fatalf("reply = %q, want submit prompt", r.Text)
	}
}

func TestOpenFormHasPriorityOverNumericSelection(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("aaaa", 1, time.Now())
	e.command(1, CmdTicketsList, "") // кэшируем индекс

	e.command(1, CmdFormStart, "")
	r := e.text(1, "1")

	// "1" — невалидное имя, но это ответ формы, а не выбор заявки
	if !strings.Contains(r.Text, "Имя") {
		t.Fatalf("reply = %q, want the form question re-asked", r.Text)
	}
	if rec, _ := e.state.Get(1); rec.LastViewed != "" {
		t.Fatal("numeric input during a form must not open a ticket")
	}
}

func TestValidationErrorReply(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.command(1, CmdFormStart, "")

	r := e.text(1, "A")
	if !strings.Contains(r.Text, "Имя") {
		t.Fatalf("reply = %q, want same question with error", r.Text)
	}
	// причина отказа показана пользователю
	if !strings.Contains(r.Text, "не менее 2") {
		t.Fatalf("reply = %q, want validation message", r.Text)
	}
}

func TestSubmitFlow(t *testing.T) {
	t.Parallel()
	e := newTestEnv()

	e.command(1, CmdFormStart, "")
	e.text(1, "Алексей")
	e.text(1, "a@b.com")

	r := e.command(1, CmdFormSubmit, "")
	if !strings.Contains(r.Text, "Идентификатор вашей заявки:") {
		t.Fatalf("reply = %q, want ticket id", r.Text)
	}
	if len(e.store.items) != 1 {
		t.Fatalf("tickets stored = %d, want 1", len(e.store.items))
	}
	if len(e.notifier.created) != 1 {
		t.Fatalf("created notifications = %d, want 1", len(e.notifier.created))
	}
	if e.forms.HasSession(1) {
		t.Fatal("session must be gone after submit")
	}
}

func TestSubmitIncompleteNoSideEffects(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.command(1, CmdFormStart, "")
	e.text(1, "Алексей")

	r := e.command(1, CmdFormSubmit, "")
	if !strings.Contains(r.Text, msgFormNotDone) {
		t.Fatalf("reply = %q, want not-done notice", r.Text)
	}
	if len(e.store.items) != 0 || len(e.notifier.created) != 0 {
		t.Fatal("incomplete submit must not create tickets or notify")
	}
	if !e.forms.HasSession(1) {
		t.Fatal("incomplete submit must keep the session")
	}
}

func TestSubmitWithoutForm(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	if r := e.command(1, CmdFormSubmit, ""); r.Text != msgNeedFormFirst {
		t.Fatalf("reply = %q", r.Text)
	}
}

func TestListCachesIndexNewestFirst(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	e.addTicket("old", 1, base)
	e.addTicket("mid", 1, base.Add(time.Hour))
	e.addTicket("new", 1, base.Add(2*time.Hour))
	e.addTicket("alien", 2, base.Add(3*time.Hour))

	r := e.command(1, CmdTicketsList, "")
	if !strings.Contains(r.Text, "1. Заявка №new") {
		t.Fatalf("list = %q, want newest first", r.Text)
	}
	if strings.Contains(r.Text, "alien") {
		t.Fatal("list must not contain other users' tickets")
	}

	rec, _ := e.state.Get(1)
	want := []string{"new", "mid", "old"}
	if len(rec.TicketIndex) != len(want) {
		t.Fatalf("index = %v, want %v", rec.TicketIndex, want)
	}
	for i := range want {
		if rec.TicketIndex[i] != want[i] {
			t.Fatalf("index = %v, want %v", rec.TicketIndex, want)
		}
	}
}

func TestNumericSelectionBounds(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e.addTicket(fmt.Sprintf("t%d", i), 1, base.Add(time.Duration(i)*time.Hour))
	}
	e.command(1, CmdTicketsList, "")

	if r := e.text(1, "0"); r.Text != msgBadIndex {
		t.Fatalf(`"0": reply = %q, want out-of-range`, r.Text)
	}
	if r := e.text(1, "4"); r.Text != msgBadIndex {
		t.Fatalf(`"4": reply = %q, want out-of-range`, r.Text)
	}

	r := e.text(1, "2")
	if !strings.Contains(r.Text, "Информация о заявке t1") {
		t.Fatalf(`"2": reply = %q, want detail of second-newest (t1)`, r.Text)
	}
	if rec, _ := e.state.Get(1); rec.LastViewed != "t1" {
		t.Fatalf("LastViewed = %q, want t1", rec.LastViewed)
	}
}

func TestNumericSelectionBeyondButtonLimit(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		e.addTicket(fmt.Sprintf("t%d", i), 1, base.Add(time.Duration(i)*time.Hour))
	}

	r := e.command(1, CmdTicketsList, "")
	if len(r.Keyboard) == 0 || len(r.Keyboard[0]) != listButtonLimit {
		t.Fatalf("numeric buttons = %d, want %d", len(r.Keyboard[0]), listButtonLimit)
	}

	// кнопок пять, но индекс хранит все семь: "7" валидна, "8" — нет
	if r := e.text(1, "7"); !strings.Contains(r.Text, "Информация о заявке t0") {
		t.Fatalf(`"7": reply = %q, want oldest ticket detail`, r.Text)
	}
	if r := e.text(1, "8"); r.Text != msgBadIndex {
		t.Fatalf(`"8": reply = %q, want out-of-range`, r.Text)
	}
}

func TestNumericWithoutCachedIndexFallsThrough(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	if r := e.text(1, "2"); r.Text != msgUnknown {
		t.Fatalf("reply = %q, want fallback when nothing was listed", r.Text)
	}
}

func TestEmptyListReply(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	if r := e.command(1, CmdTicketsList, ""); r.Text != msgNoTickets {
		t.Fatalf("reply = %q", r.Text)
	}
}

func TestListStorageFailure(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.store.failList = true
	if r := e.command(1, CmdTicketsList, ""); r.Text != msgStorageError {
		t.Fatalf("reply = %q, want storage error reply", r.Text)
	}
}

func TestViewByFullID(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())

	r := e.text(1, "123_456")
	if !strings.Contains(r.Text, "Информация о заявке 123_456") {
		t.Fatalf("reply = %q, want ticket detail", r.Text)
	}
	if !strings.Contains(r.Text, "Имя: Иван") {
		t.Fatalf("reply = %q, want form fields", r.Text)
	}
}

func TestOwnershipIndistinguishableFromMissing(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())

	foreign := e.text(2, "123_456") // чужая заявка
	missing := e.text(2, "999_999") // несуществующая
	if foreign.Text != msgTicketNotFound || missing.Text != msgTicketNotFound {
		t.Fatalf("foreign = %q, missing = %q, want identical not-found", foreign.Text, missing.Text)
	}
	if foreign.Text != missing.Text {
		t.Fatal("replies must not distinguish foreign from missing")
	}
}

func TestDeleteTriggerWithoutViewedTicket(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	if r := e.command(1, CmdTicketDelete, ""); r.Text != msgChooseFirst {
		t.Fatalf("reply = %q", r.Text)
	}
}

func TestTwoPhaseDeleteCancel(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())
	e.text(1, "123_456") // просмотр запоминает заявку

	r := e.text(1, "удалить заявку")
	if !strings.Contains(r.Text, "Вы уверены") {
		t.Fatalf("reply = %q, want confirmation prompt", r.Text)
	}
	if rec, _ := e.state.Get(1); rec.PendingDelete != "123_456" {
		t.Fatalf("PendingDelete = %q, want 123_456", rec.PendingDelete)
	}

	if r := e.text(1, "нет"); r.Text != msgDeleteCancelled {
		t.Fatalf("reply = %q", r.Text)
	}
	if rec, _ := e.state.Get(1); rec.PendingDelete != "" {
		t.Fatal("pending delete must be cleared on cancel")
	}
	if !e.store.has("123_456") {
		t.Fatal("cancelled delete must keep the ticket")
	}
	if len(e.notifier.deleted) != 0 {
		t.Fatal("no deletion notification on cancel")
	}
}

func TestTwoPhaseDeleteConfirm(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())
	e.text(1, "123_456")
	e.text(1, "удалить заявку")

	r := e.text(1, "да")
	if !strings.Contains(r.Text, "успешно удалена") {
		t.Fatalf("reply = %q", r.Text)
	}
	if e.store.has("123_456") {
		t.Fatal("ticket must be deleted")
	}
	rec, _ := e.state.Get(1)
	if rec.PendingDelete != "" || rec.LastViewed != "" {
		t.Fatalf("state must be cleared, got %+v", rec)
	}
	if len(e.notifier.deleted) != 1 || e.notifier.deleted[0] != "123_456" {
		t.Fatalf("deleted notifications = %v", e.notifier.deleted)
	}
}

func TestConfirmWithoutPendingDelete(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())

	if r := e.command(1, CmdConfirmDelete, ""); r.Text != msgNoPendingDelete {
		t.Fatalf("reply = %q", r.Text)
	}
	if !e.store.has("123_456") {
		t.Fatal("nothing may be deleted without a pending state")
	}
}

func TestConfirmAfterTicketVanished(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())
	e.text(1, "123_456")
	e.text(1, "удалить заявку")

	// заявка исчезла между ходами
	_, _ = e.store.Delete(context.Background(), "123_456", 1)

	if r := e.text(1, "да"); r.Text != msgDeleteFailed {
		t.Fatalf("reply = %q, want delete-failed", r.Text)
	}
	if rec, _ := e.state.Get(1); rec.PendingDelete != "" {
		t.Fatal("pending state must be cleared even on failure")
	}
	if len(e.notifier.deleted) != 0 {
		t.Fatal("no notification for a failed delete")
	}
}

func TestDeleteByNonOwner(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())

	if r := e.command(2, CmdTicketDelete, "123_456"); r.Text != msgNoDeleteRights {
		t.Fatalf("reply = %q", r.Text)
	}
	if !e.store.has("123_456") {
		t.Fatal("foreign delete prompt must not touch the ticket")
	}
	if rec, _ := e.state.Get(2); rec.PendingDelete != "" {
		t.Fatal("no pending delete for a foreign ticket")
	}
}

func TestCancelClearsPendingDeleteFirst(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.addTicket("123_456", 1, time.Now())
	e.text(1, "123_456")
	e.text(1, "удалить заявку")

	if r := e.command(1, CmdCancel, ""); r.Text != msgDeleteCancelled {
		t.Fatalf("reply = %q, want delete-cancelled", r.Text)
	}
	// второй Cancel — уже отмена (несуществующей) формы
	if r := e.command(1, CmdCancel, ""); r.Text != "Заполнение формы отменено." {
		t.Fatalf("reply = %q, want form cancel message", r.Text)
	}
}

func TestCancelFormDiscardsSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv()
	e.command(1, CmdFormStart, "")
	e.text(1, "Алексей")

	e.command(1, CmdCancel, "")
	if e.forms.HasSession(1) {
		t.Fatal("cancel must remove the session")
	}
	// текст после отмены — уже не ответ формы
	if r := e.text(1, "Алексей"); r.Text != msgUnknown {
		t.Fatalf("reply = %q, want fallback", r.Text)
	}
}

func TestParseCommandLabels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"Начать", CmdStart, true},
		{"start", CmdStart, true},
		{"/start", CmdStart, true},
		{"Заполнить заявку", CmdFormStart, true},
		{"заполнить заявку", CmdFormStart, true},
		{"Отмена", CmdCancel, true},
		{"Отправить", CmdFormSubmit, true},
		{"Мои заявки", CmdTicketsList, true},
		{"Удалить заявку", CmdTicketDelete, true},
		{"Подтвердить удаление", CmdConfirmDelete, true},
		{"просто текст", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}
