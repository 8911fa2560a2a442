package errs

import "errors"

var (
	// ErrTicketNotFound — заявка не найдена или принадлежит другому пользователю.
	// Оба случая намеренно неразличимы для вызывающего кода.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrDuplicateTicket — заявка с таким идентификатором уже существует.
	ErrDuplicateTicket = errors.New("ticket id already exists")

	// ErrNoSession — у пользователя нет активной формы.
	ErrNoSession = errors.New("no active form session")

	// ErrFormIncomplete — форма заполнена не полностью, отправка невозможна.
	ErrFormIncomplete = errors.New("form is not complete")
)
