package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/domain/port"
)

// PostgresUserRepository хранилище состояния пользователей. Состояние
// диалога живёт в базе, а не в памяти процесса: при нескольких
// экземплярах бота память не является источником истины.
type PostgresUserRepository struct {
	DB *sql.DB
}

// NewPostgresUserRepository создаёт хранилище поверх открытого соединения.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// Migrate создаёт таблицу пользователей, если её ещё нет.
func (r *PostgresUserRepository) Migrate(ctx context.Context) error {
	const schema = `
create table if not exists bot_users (
    user_id bigint primary key,
    chat_id bigint not null,
    state   text not null
)`

	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// Get возвращает пользователя по ID, создаёт нового если не найден.
func (r *PostgresUserRepository) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	const q = `select chat_id, state from bot_users where user_id = $1`

	user := entity.User{ID: userID}
	var state string
	err := r.DB.QueryRowContext(ctx, q, userID).Scan(&user.ChatID, &state)
	if errors.Is(err, sql.ErrNoRows) {
		newUser := entity.NewUser(userID, chatID)
		if err := r.Save(ctx, newUser); err != nil {
			return nil, err
		}
		return newUser, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}

	user.State = entity.UserState(state)
	return &user, nil
}

// Save сохраняет состояние пользователя.
func (r *PostgresUserRepository) Save(ctx context.Context, user *entity.User) error {
	const q = `
insert into bot_users (user_id, chat_id, state)
values ($1, $2, $3)
on conflict (user_id) do update set
    chat_id = excluded.chat_id,
    state = excluded.state`

	if _, err := r.DB.ExecContext(ctx, q, user.ID, user.ChatID, string(user.State)); err != nil {
		return fmt.Errorf("save user %d: %w", user.ID, err)
	}
	return nil
}

// Проверка реализации интерфейса
var _ port.UserRepository = (*PostgresUserRepository)(nil)
