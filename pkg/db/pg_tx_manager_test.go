package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBeginner struct {
	tx  pgx.Tx
	err error
}

func (b fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return b.tx, b.err
}

type fakeTx struct {
	pgx.Tx
	commitErr error
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rollbacks++
	return nil
}

func TestInTxCommits(t *testing.T) {
	tx := &fakeTx{}
	m := &PgTxManager{}

	err := m.inTx(context.Background(), fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tx.commits)
	assert.Equal(t, 0, tx.rollbacks)
}

func TestInTxCommitFailurePropagates(t *testing.T) {
	tx := &fakeTx{commitErr: assert.AnError}
	m := &PgTxManager{}

	err := m.inTx(context.Background(), fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, tx.commits)
}

func TestInTxRollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	m := &PgTxManager{}

	err := m.inTx(context.Background(), fakeBeginner{tx: tx}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, 0, tx.commits)
	assert.Equal(t, 1, tx.rollbacks)
}
