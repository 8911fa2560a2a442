package userstate

import "sync"

// Record — межходовое состояние диалога одного пользователя.
// Явные поля вместо безымянного словаря: невозможные комбинации
// отсекаются типом, а не дисциплиной вызывающего кода.
type Record struct {
	// LastViewed — идентификатор последней просмотренной заявки.
	LastViewed string
	// PendingDelete — заявка, ожидающая подтверждения удаления.
	// Принадлежность проверяется при установке и повторно при подтверждении.
	PendingDelete string
	// TicketIndex — идентификаторы заявок в порядке последнего показа
	// списка; нужен для выбора заявки по номеру ("2" -> второй элемент).
	TicketIndex []string
}

func (r *Record) empty() bool {
	return r.LastViewed == "" && r.PendingDelete == "" && len(r.TicketIndex) == 0
}

// Store — потокобезопасное хранилище записей по ID пользователя.
// Записи, ставшие пустыми после изменения, удаляются из map целиком.
type Store struct {
	mu      sync.Mutex
	records map[int64]*Record
}

func New() *Store {
	return &Store{records: make(map[int64]*Record)}
}

// Get возвращает копию записи пользователя.
func (s *Store) Get(userID int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		return Record{}, false
	}
	out := *r
	out.TicketIndex = append([]string(nil), r.TicketIndex...)
	return out, true
}

// Update атомарно изменяет запись пользователя. Отсутствующая запись
// создаётся на время вызова fn и не сохраняется, если осталась пустой.
func (s *Store) Update(userID int64, fn func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		r = &Record{}
	}
	fn(r)
	if r.empty() {
		delete(s.records, userID)
		return
	}
	s.records[userID] = r
}

// Clear удаляет всю запись пользователя.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
}

// Len — количество пользователей с непустым состоянием (для тестов и метрик).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
