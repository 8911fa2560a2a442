package vk

import (
	"encoding/json"

	"github.com/psds-microservice/intake-bot/internal/bot"
)

// Разметка клавиатуры VK. Ядро оперирует абстрактными кнопками (bot.Button);
// здесь они переводятся в JSON, который принимает messages.send.

type keyboardMarkup struct {
	OneTime bool             `json:"one_time"`
	Inline  bool             `json:"inline"`
	Buttons [][]buttonMarkup `json:"buttons"`
}

type buttonMarkup struct {
	Action buttonAction `json:"action"`
	Color  string       `json:"color,omitempty"`
}

type buttonAction struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Payload string `json:"payload,omitempty"`
}

// buttonPayload приходит обратно в message_new при нажатии кнопки.
type buttonPayload struct {
	Command  string `json:"command,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
}

func renderKeyboard(rows [][]bot.Button) (string, error) {
	markup := keyboardMarkup{Buttons: make([][]buttonMarkup, 0, len(rows))}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out := make([]buttonMarkup, 0, len(row))
		for _, b := range row {
			m := buttonMarkup{
				Action: buttonAction{Type: "text", Label: b.Label},
				Color:  string(b.Color),
			}
			if b.Command != "" {
				payload, err := json.Marshal(buttonPayload{
					Command:  string(b.Command),
					TicketID: b.TicketID,
				})
				if err != nil {
					return "", err
				}
				m.Action.Payload = string(payload)
			}
			out = append(out, m)
		}
		markup.Buttons = append(markup.Buttons, out)
	}
	data, err := json.Marshal(markup)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
