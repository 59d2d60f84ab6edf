package storage

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"crossbot/internal/helper"
	"crossbot/internal/models"
	"crossbot/pkg/db"
)

// durableHistoryLimit — сколько последних точек (fast, slow) храним на пару.
const durableHistoryLimit = 100

// Store — постоянное хранилище движка: ряды скользящих средних и записи
// исполненных ордеров.
type Store struct {
	db *db.PgTxManager
}

func New(db *db.PgTxManager) *Store {
	return &Store{db: db}
}

// FindLatestAverages возвращает сохранённые ряды пары; пустые срезы, если
// записей ещё нет.
func (s *Store) FindLatestAverages(ctx context.Context, exchange, symbol string) (fast, slow []float64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.FindLatestAverages: %w", err)
		}
	}()

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		var fastRaw, slowRaw []byte
		qerr := tx.QueryRow(ctxTx,
			`SELECT fast, slow FROM signal_averages WHERE exchange = $1 AND symbol = $2`,
			exchange, symbol,
		).Scan(&fastRaw, &slowRaw)
		if qerr == pgx.ErrNoRows {
			return nil
		}
		if qerr != nil {
			return qerr
		}
		if uerr := sonic.Unmarshal(fastRaw, &fast); uerr != nil {
			return uerr
		}
		return sonic.Unmarshal(slowRaw, &slow)
	})
	return fast, slow, err
}

// AppendAverages дописывает точку в оба ряда и подрезает хвост до лимита.
func (s *Store) AppendAverages(ctx context.Context, exchange, symbol string, fast, slow float64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.AppendAverages: %w", err)
		}
	}()

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		var (
			fastRaw, slowRaw   []byte
			fastVals, slowVals []float64
		)
		qerr := tx.QueryRow(ctxTx,
			`SELECT fast, slow FROM signal_averages WHERE exchange = $1 AND symbol = $2 FOR UPDATE`,
			exchange, symbol,
		).Scan(&fastRaw, &slowRaw)
		switch qerr {
		case nil:
			if uerr := sonic.Unmarshal(fastRaw, &fastVals); uerr != nil {
				return uerr
			}
			if uerr := sonic.Unmarshal(slowRaw, &slowVals); uerr != nil {
				return uerr
			}
		case pgx.ErrNoRows:
			// первая точка пары
		default:
			return qerr
		}

		fastVals = helper.LastN(append(fastVals, fast), durableHistoryLimit)
		slowVals = helper.LastN(append(slowVals, slow), durableHistoryLimit)

		fastRaw, merr := sonic.Marshal(fastVals)
		if merr != nil {
			return merr
		}
		slowRaw, merr = sonic.Marshal(slowVals)
		if merr != nil {
			return merr
		}

		_, eerr := tx.Exec(ctxTx, `
			INSERT INTO signal_averages (exchange, symbol, fast, slow, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (exchange, symbol)
			DO UPDATE SET fast = $3, slow = $4, updated_at = now()`,
			exchange, symbol, fastRaw, slowRaw,
		)
		return eerr
	})
}

// CreateOrder пишет терминальную запись ордера; false — запись не создана
// (дубль client_order_id от повторного опроса).
func (s *Store) CreateOrder(ctx context.Context, o *models.Order, exchange string) (created bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.CreateOrder: %w", err)
		}
	}()

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, eerr := tx.Exec(ctxTx, `
			INSERT INTO orders
				(exchange, symbol, order_id, client_order_id, side, type, status, quantity, filled, price, fee, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
			ON CONFLICT (exchange, client_order_id) DO NOTHING`,
			exchange, o.Symbol, o.OrderID, o.ClientOrderID, o.Side, o.Type,
			o.Status, o.Quantity, o.Filled, o.Price, o.Fee,
		)
		if eerr != nil {
			return eerr
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	return created, err
}
