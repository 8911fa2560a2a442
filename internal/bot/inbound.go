package bot

import (
	"regexp"
	"strings"
)

// Command — структурная команда, пришедшая из payload кнопки.
// Точные подписи кнопок нормализуются в команды на границе транспорта,
// поэтому нажатие кнопки и ввод её текста ведут себя одинаково.
type Command string

const (
	CmdStart         Command = "start"
	CmdFormStart     Command = "form_start"
	CmdCancel        Command = "cancel"
	CmdFormSubmit    Command = "form_submit"
	CmdTicketsList   Command = "tickets_list"
	CmdTicketView    Command = "ticket_view"
	CmdTicketDelete  Command = "ticket_delete"
	CmdConfirmDelete Command = "confirm_delete"
)

// Inbound — входящее сообщение после разбора на границе транспорта.
// Command пустая, когда пришёл свободный текст.
type Inbound struct {
	UserID   int64
	Text     string
	Command  Command
	TicketID string
}

// Подписи кнопок клавиатур.
const (
	LabelStart         = "Начать"
	LabelFormStart     = "Заполнить заявку"
	LabelCancel        = "Отмена"
	LabelSubmit        = "Отправить"
	LabelMyTickets     = "Мои заявки"
	LabelDeleteTicket  = "Удалить заявку"
	LabelConfirmDelete = "Подтвердить удаление"
)

var labelCommands = map[string]Command{
	strings.ToLower(LabelStart):         CmdStart,
	"start":                             CmdStart,
	"/start":                            CmdStart,
	strings.ToLower(LabelFormStart):     CmdFormStart,
	strings.ToLower(LabelCancel):        CmdCancel,
	strings.ToLower(LabelSubmit):        CmdFormSubmit,
	strings.ToLower(LabelMyTickets):     CmdTicketsList,
	strings.ToLower(LabelDeleteTicket):  CmdTicketDelete,
	strings.ToLower(LabelConfirmDelete): CmdConfirmDelete,
}

// ParseCommand сопоставляет текст сообщения с подписью известной кнопки.
// Сравнение без учёта регистра.
func ParseCommand(text string) (Command, bool) {
	cmd, ok := labelCommands[strings.ToLower(strings.TrimSpace(text))]
	return cmd, ok
}

// Фразы подтверждения и отмены удаления; сравниваются без учёта регистра
// и только при наличии заявки, ожидающей удаления.
var (
	confirmPhrases = []string{"подтвердить удаление", "удалить", "да", "подтвердить"}
	cancelPhrases  = []string{"отмена", "нет"}
	deleteTriggers = []string{"удалить заявку", "удалить"}
)

func matchPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.EqualFold(text, p) {
			return true
		}
	}
	return false
}

var (
	reDigits   = regexp.MustCompile(`^\d+$`)
	reLegacyID = regexp.MustCompile(`^\d+_\d+$`)
	reUUID     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// looksLikeTicketID — полный идентификатор заявки: случайный токен или
// старый формат "userID_timestamp", чтобы старые заявки оставались доступны.
func looksLikeTicketID(text string) bool {
	return reUUID.MatchString(text) || reLegacyID.MatchString(text)
}
