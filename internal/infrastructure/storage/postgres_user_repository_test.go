package storage

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"eyecare-bot/internal/domain/entity"
)

func TestPostgresUserRepository_GetExisting(t *testing.T) {
	it(func() {
		repo := NewPostgresUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("from bot_users")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"chat_id", "state"}).
				AddRow(int64(100), string(entity.StateAwaitingConf)))

		user, err := repo.Get(context.Background(), 42, 100)
		require.NoError(t, err)
		require.Equal(t, int64(42), user.ID)
		require.Equal(t, int64(100), user.ChatID)
		require.Equal(t, entity.StateAwaitingConf, user.State)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_GetCreatesMissing(t *testing.T) {
	it(func() {
		repo := NewPostgresUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("from bot_users")).
			WithArgs(int64(42)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(regexp.QuoteMeta("insert into bot_users")).
			WithArgs(int64(42), int64(100), string(entity.StateMainMenu)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		user, err := repo.Get(context.Background(), 42, 100)
		require.NoError(t, err)
		require.Equal(t, entity.StateMainMenu, user.State)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_Save(t *testing.T) {
	it(func() {
		repo := NewPostgresUserRepository(db)
		user := entity.NewUser(42, 100)
		user.SetState(entity.StateAwaitingEye)

		mock.ExpectExec(regexp.QuoteMeta("insert into bot_users")).
			WithArgs(int64(42), int64(100), string(entity.StateAwaitingEye)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Save(context.Background(), user))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
