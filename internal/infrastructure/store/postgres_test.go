package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/ht-marketplace/internal/domain/catalog"
)

// The mains pass their signal context through schema bootstrap.
var _ func(context.Context, *sql.DB) error = EnsureSchema

type fakeResult struct {
	rows int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

func TestRequireRow(t *testing.T) {
	assert.NoError(t, requireRow(fakeResult{rows: 1}, catalog.ErrProductNotFound))
	assert.ErrorIs(t, requireRow(fakeResult{rows: 0}, catalog.ErrProductNotFound), catalog.ErrProductNotFound)
}
