package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/intake-bot/internal/errs"
	"github.com/psds-microservice/intake-bot/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TicketStore — контракт хранилища заявок для роутера и менеджера формы.
// Delete и GetOwned проверяют владельца атомарно с самой операцией.
type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	Get(ctx context.Context, id string) (*model.Ticket, error)
	GetOwned(ctx context.Context, id string, owner int64) (*model.Ticket, error)
	ListByOwner(ctx context.Context, owner int64) ([]model.Ticket, error)
	Delete(ctx context.Context, id string, owner int64) (bool, error)
}

// NewTicket собирает заявку со свежим случайным идентификатором.
// Случайный токен вместо комбинации user_id+timestamp: не светит владельца
// в идентификаторе и не коллидирует при двойной отправке в одну секунду.
func NewTicket(owner int64, answers map[string]string) *model.Ticket {
	return &model.Ticket{
		TicketID:  uuid.NewString(),
		UserID:    owner,
		CreatedAt: time.Now().UTC(),
		Answers:   datatypes.NewJSONType(answers),
	}
}

// GormStore — реализация TicketStore поверх Postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create вставляет заявку; дубликат идентификатора — ошибка, а не перезапись.
// Уникальность обеспечивает первичный ключ таблицы.
func (s *GormStore) Create(ctx context.Context, t *model.Ticket) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.ErrDuplicateTicket
		}
		return err
	}
	return nil
}

// Get возвращает заявку по идентификатору без проверки владельца
// (служебные команды и admin API).
func (s *GormStore) Get(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).Where("ticket_id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetOwned возвращает заявку, только если она принадлежит owner.
// "Нет заявки" и "чужая заявка" неразличимы: в обоих случаях ErrTicketNotFound.
func (s *GormStore) GetOwned(ctx context.Context, id string, owner int64) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("ticket_id = ? AND user_id = ?", id, owner).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListByOwner — заявки пользователя, новые первыми.
func (s *GormStore) ListByOwner(ctx context.Context, owner int64) ([]model.Ticket, error) {
	var items []model.Ticket
	err := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Delete удаляет заявку одним условным DELETE: проверка владельца и само
// удаление — одно атомарное выражение, а не пара чтение+удаление.
func (s *GormStore) Delete(ctx context.Context, id string, owner int64) (bool, error) {
	tx := s.db.WithContext(ctx).
		Where("ticket_id = ? AND user_id = ?", id, owner).
		Delete(&model.Ticket{})
	if tx.Error != nil {
		return false, fmt.Errorf("delete ticket %s: %w", id, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}
