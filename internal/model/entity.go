package model

import (
	"regexp"
	"time"

	"gorm.io/datatypes"
)

// Ticket — заявка, созданная из полностью заполненной формы.
// Answers хранится как jsonb: имя поля формы -> ответ пользователя.
type Ticket struct {
	TicketID  string                                `gorm:"primaryKey;type:varchar(64)" json:"ticket_id"`
	UserID    int64                                 `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time                             `gorm:"index" json:"created_at"`
	Answers   datatypes.JSONType[map[string]string] `gorm:"not null" json:"answers"`
}

func (Ticket) TableName() string { return "tickets" }

type RuleKind string

const (
	RuleNone      RuleKind = "none"
	RuleMinLength RuleKind = "min_length"
	RuleRegex     RuleKind = "regex"
	RulePhone     RuleKind = "phone"
)

// Rule — правило проверки одного поля формы. Pattern компилируется
// один раз при загрузке конфигурации (с якорями ^...$).
type Rule struct {
	Kind      RuleKind
	MinLength int
	Pattern   *regexp.Regexp
}

// FieldSpec — одно поле формы. Порядок полей задаёт порядок вопросов
// и не меняется после старта процесса.
type FieldSpec struct {
	Name string
	Rule Rule
}
