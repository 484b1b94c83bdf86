package fees

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища счетов. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Reader отдаёт счета только для чтения. Реализация может отдавать копию из
// кэша, поэтому изменять и сохранять полученный счёт нельзя.
type Reader interface {
	// GetByID возвращает счёт студента.
	// Возвращает (nil, nil), если счёта нет: отсутствие не является ошибкой.
	GetByID(ctx context.Context, studentID string) (*Account, error)
}

// Repository загружает и сохраняет счета студентов по ID студента.
// Загрузка через Repository всегда читает основное хранилище: команды
// изменяют только свежую копию.
// Реализации работают через AccountRecord (ToRecord / FromRecord) и не держат
// ссылки на агрегаты между вызовами.
type Repository interface {
	Reader

	// GetByIDOrFail возвращает счёт студента.
	// Возвращает ErrAccountNotFound, если счёта нет.
	GetByIDOrFail(ctx context.Context, studentID string) (*Account, error)

	// Save полностью перезаписывает сохранённое состояние счёта.
	Save(ctx context.Context, account *Account) error
}

// RecordCache - кэш записей счетов (реализуется в infrastructure/persistence/redis).
type RecordCache interface {
	// Get возвращает запись и true, если она есть в кэше.
	Get(ctx context.Context, studentID string) (*AccountRecord, bool, error)

	// Set сохраняет запись в кэш.
	Set(ctx context.Context, record AccountRecord) error

	// Invalidate удаляет запись из кэша.
	Invalidate(ctx context.Context, studentID string) error
}
