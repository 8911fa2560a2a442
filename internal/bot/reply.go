package bot

import "strconv"

// ButtonColor — абстрактный цвет кнопки; в разметку конкретной платформы
// транслируется на границе транспорта.
type ButtonColor string

const (
	ColorPrimary   ButtonColor = "primary"
	ColorSecondary ButtonColor = "secondary"
	ColorPositive  ButtonColor = "positive"
	ColorNegative  ButtonColor = "negative"
)

// Button — кнопка клавиатуры. Command пустая у кнопок, нажатие которых
// приходит простым текстом (номера заявок в списке).
type Button struct {
	Label    string
	Command  Command
	TicketID string
	Color    ButtonColor
}

// Reply — ответ бота: текст плюс клавиатура (ряды кнопок).
// Ядро не знает про разметку VK; рендеринг живёт в internal/vk.
type Reply struct {
	Text     string
	Keyboard [][]Button
}

// StartKeyboard — стартовые действия.
func StartKeyboard() [][]Button {
	return [][]Button{{
		{Label: LabelFormStart, Command: CmdFormStart, Color: ColorPrimary},
		{Label: LabelMyTickets, Command: CmdTicketsList, Color: ColorSecondary},
	}}
}

// FormKeyboard — во время заполнения формы доступна только отмена.
func FormKeyboard() [][]Button {
	return [][]Button{{
		{Label: LabelCancel, Command: CmdCancel, Color: ColorNegative},
	}}
}

// SubmitKeyboard — форма заполнена, ждём отправки.
func SubmitKeyboard() [][]Button {
	return [][]Button{{
		{Label: LabelSubmit, Command: CmdFormSubmit, Color: ColorPositive},
		{Label: LabelCancel, Command: CmdCancel, Color: ColorNegative},
	}}
}

// TicketDetailKeyboard — действия на экране просмотра заявки.
func TicketDetailKeyboard() [][]Button {
	return [][]Button{
		{
			{Label: LabelMyTickets, Command: CmdTicketsList, Color: ColorSecondary},
			{Label: LabelDeleteTicket, Command: CmdTicketDelete, Color: ColorNegative},
		},
		{
			{Label: LabelFormStart, Command: CmdFormStart, Color: ColorPrimary},
		},
	}
}

// ConfirmDeleteKeyboard — двухфазное удаление: подтвердить или отменить.
func ConfirmDeleteKeyboard() [][]Button {
	return [][]Button{{
		{Label: LabelConfirmDelete, Command: CmdConfirmDelete, Color: ColorNegative},
		{Label: LabelCancel, Command: CmdCancel, Color: ColorSecondary},
	}}
}

// listButtonLimit — сколько числовых кнопок показываем под списком заявок.
// Кэшированный индекс может быть длиннее: выбор по номеру сверяется с ним,
// а не с количеством кнопок.
const listButtonLimit = 5

// ListKeyboard — числовые кнопки выбора заявки плюс кнопка новой заявки.
func ListKeyboard(n int) [][]Button {
	if n > listButtonLimit {
		n = listButtonLimit
	}
	row := make([]Button, 0, n)
	for i := 1; i <= n; i++ {
		row = append(row, Button{Label: strconv.Itoa(i), Color: ColorSecondary})
	}
	return [][]Button{
		row,
		{{Label: LabelFormStart, Command: CmdFormStart, Color: ColorPrimary}},
	}
}
