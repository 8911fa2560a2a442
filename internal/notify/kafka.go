package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/psds-microservice/intake-bot/internal/model"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Producer пишет события заявок в топик Kafka (best-effort, не блокирует бота).
// Если brokers или topic пустые — все методы no-op.
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    zerolog.Logger
}

func NewProducer(brokers []string, topic string, log zerolog.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) TicketCreated(ctx context.Context, t *model.Ticket) {
	p.produce(ctx, "ticket.created", map[string]interface{}{
		"ticket_id":  t.TicketID,
		"user_id":    t.UserID,
		"created_at": t.CreatedAt.Format(time.RFC3339),
		"answers":    t.Answers.Data(),
	})
}

func (p *Producer) TicketDeleted(ctx context.Context, ticketID string, userID int64) {
	p.produce(ctx, "ticket.deleted", map[string]interface{}{
		"ticket_id": ticketID,
		"user_id":   userID,
	})
}

func (p *Producer) produce(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("kafka: marshal ticket event")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("kafka: write ticket event")
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
