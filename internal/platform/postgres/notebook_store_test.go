package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/phrazzld/pagescan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresNotebookStore(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	s := NewPostgresNotebookStore(db, quietLogger())

	nb, err := domain.NewNotebook(uuid.New(), "Field notes", 48)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notebooks")).
		WithArgs(nb.ID, nb.OwnerID, "Field notes", 48, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Create(context.Background(), nb))

	mock.ExpectQuery(regexp.QuoteMeta("FROM notebooks")).
		WithArgs(nb.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "page_count", "created_at"}).
			AddRow(nb.ID.String(), nb.OwnerID.String(), nb.Title, nb.PageCount, time.Now()))
	got, err := s.GetByID(context.Background(), nb.ID)
	require.NoError(t, err)
	assert.Equal(t, nb.OwnerID, got.OwnerID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM notebooks")).
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotebookNotFound)
}
