package inpsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	storageErrors "github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"
)

const (
	listBonusTiersQuery = "SELECT id, position, amount_min, amount_max, multiplier FROM bonus_tiers ORDER BY position, id"
	createInvoiceQuery  = "INSERT INTO invoices (user_id, login, amount, created_at) VALUES ($1, $2, $3, $4) RETURNING id"
	getInvoiceQuery     = "SELECT id, user_id, login, amount, created_at FROM invoices WHERE id = $1"
	bindWalletQuery     = "INSERT INTO wallets (user_id, kind, address, created_at) VALUES ($1, $2, $3, $4)"
	listWalletsQuery    = "SELECT user_id, kind, address, created_at FROM wallets WHERE user_id = $1 ORDER BY kind"
	listDepositsQuery   = "SELECT id, user_id, login, amount, bonus, provider, operation_id, created_at, processed_at FROM deposits WHERE user_id = $1 ORDER BY processed_at DESC, id DESC"
	// deposits of referred users that have no commission row yet
	pendingCommissionsQuery = `SELECT d.id, d.user_id, u.referrer_id, d.amount FROM deposits d
		JOIN users u ON u.id = d.user_id
		JOIN users r ON r.id = u.referrer_id
		LEFT JOIN referral_commissions c ON c.deposit_id = d.id
		WHERE c.deposit_id IS NULL
		ORDER BY d.id
		LIMIT $1`
)

type Storage struct {
	Cfg *config.StorageConfig
	DB  *sql.DB
	log *zerolog.Logger
}

// InitStorage opens a PSQL connection pool and makes sure the schema exists.
func InitStorage(ctx context.Context, cfg *config.StorageConfig, log *zerolog.Logger) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	st := NewStorage(db, cfg, log)
	if err = st.createTables(ctx); err != nil {
		return nil, err
	}
	log.Info().Msg("PSQL DB connection was established")
	return st, nil
}

// NewStorage wraps an already opened connection pool.
func NewStorage(db *sql.DB, cfg *config.StorageConfig, log *zerolog.Logger) *Storage {
	return &Storage{
		Cfg: cfg,
		DB:  db,
		log: log,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func wrapExecution(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &storageErrors.ContextTimeoutExceededError{Err: err}
	}
	return &storageErrors.ExecutionPSQLError{Err: err}
}

// run executes fn asynchronously and gives up as soon as ctx is done.
func run[T any](ctx context.Context, log *zerolog.Logger, op string, fn func() (T, error)) (T, error) {
	chanOk := make(chan T, 1)
	chanEr := make(chan error, 1)
	go func() {
		v, err := fn()
		if err != nil {
			chanEr <- err
			return
		}
		chanOk <- v
	}()

	var zero T
	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("%s failed", op))
		return zero, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		log.Error().Err(methodErr).Msg(fmt.Sprintf("%s failed", op))
		return zero, methodErr
	case v := <-chanOk:
		log.Debug().Msg(fmt.Sprintf("%s done", op))
		return v, nil
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return wrapExecution(err)
	}
	return nil
}

func (s *Storage) ListBonusTiers(ctx context.Context) ([]modelstorage.BonusTierEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, listBonusTiersQuery)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return run(ctx, s.log, "listing bonus tiers", func() ([]modelstorage.BonusTierEntry, error) {
		rows, err := selectStmt.QueryContext(ctx)
		if err != nil {
			return nil, wrapExecution(err)
		}
		defer rows.Close()
		var queryOutput []modelstorage.BonusTierEntry
		for rows.Next() {
			var row modelstorage.BonusTierEntry
			if err = rows.Scan(&row.ID, &row.Position, &row.AmountMin, &row.AmountMax, &row.Multiplier); err != nil {
				return nil, &storageErrors.ScanningPSQLError{Err: err}
			}
			queryOutput = append(queryOutput, row)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningPSQLError{Err: err}
		}
		return queryOutput, nil
	})
}

func (s *Storage) CreateInvoice(ctx context.Context, entry modelstorage.InvoiceEntry) (int64, error) {
	insertStmt, err := s.DB.PrepareContext(ctx, createInvoiceQuery)
	if err != nil {
		return 0, &storageErrors.StatementPSQLError{Err: err}
	}
	defer insertStmt.Close()
	return run(ctx, s.log, fmt.Sprintf("creating invoice for user %d", entry.UserID), func() (int64, error) {
		var id int64
		if err := insertStmt.QueryRowContext(ctx, entry.UserID, entry.Login, entry.Amount, entry.CreatedAt).Scan(&id); err != nil {
			return 0, wrapExecution(err)
		}
		return id, nil
	})
}

func (s *Storage) GetInvoice(ctx context.Context, id int64) (*modelstorage.InvoiceEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, getInvoiceQuery)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return run(ctx, s.log, fmt.Sprintf("getting invoice %d", id), func() (*modelstorage.InvoiceEntry, error) {
		var queryOutput modelstorage.InvoiceEntry
		err := selectStmt.QueryRowContext(ctx, id).Scan(&queryOutput.ID, &queryOutput.UserID, &queryOutput.Login, &queryOutput.Amount, &queryOutput.CreatedAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, &storageErrors.NotFoundError{Err: err, ID: strconv.FormatInt(id, 10)}
		case err != nil:
			return nil, wrapExecution(err)
		}
		return &queryOutput, nil
	})
}

func (s *Storage) BindWallet(ctx context.Context, entry modelstorage.WalletEntry) error {
	insertStmt, err := s.DB.PrepareContext(ctx, bindWalletQuery)
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer insertStmt.Close()
	_, err = run(ctx, s.log, fmt.Sprintf("binding %s wallet for user %d", entry.Kind, entry.UserID), func() (struct{}, error) {
		_, err := insertStmt.ExecContext(ctx, entry.UserID, entry.Kind, entry.Address, entry.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				// either the address belongs to someone else or the user already has a wallet of this kind
				return struct{}{}, &storageErrors.AlreadyExistsError{Err: err, ID: entry.Kind + ":" + entry.Address}
			}
			return struct{}{}, wrapExecution(err)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Storage) ListWallets(ctx context.Context, userID int64) ([]modelstorage.WalletEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, listWalletsQuery)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return run(ctx, s.log, fmt.Sprintf("listing wallets for user %d", userID), func() ([]modelstorage.WalletEntry, error) {
		rows, err := selectStmt.QueryContext(ctx, userID)
		if err != nil {
			return nil, wrapExecution(err)
		}
		defer rows.Close()
		var queryOutput []modelstorage.WalletEntry
		for rows.Next() {
			var row modelstorage.WalletEntry
			if err = rows.Scan(&row.UserID, &row.Kind, &row.Address, &row.CreatedAt); err != nil {
				return nil, &storageErrors.ScanningPSQLError{Err: err}
			}
			queryOutput = append(queryOutput, row)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningPSQLError{Err: err}
		}
		return queryOutput, nil
	})
}

func (s *Storage) ListDeposits(ctx context.Context, userID int64) ([]modelstorage.DepositEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, listDepositsQuery)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return run(ctx, s.log, fmt.Sprintf("listing deposits for user %d", userID), func() ([]modelstorage.DepositEntry, error) {
		rows, err := selectStmt.QueryContext(ctx, userID)
		if err != nil {
			return nil, wrapExecution(err)
		}
		defer rows.Close()
		var queryOutput []modelstorage.DepositEntry
		for rows.Next() {
			var row modelstorage.DepositEntry
			err = rows.Scan(&row.ID, &row.UserID, &row.Login, &row.Amount, &row.Bonus, &row.Provider, &row.OperationID, &row.CreatedAt, &row.ProcessedAt)
			if err != nil {
				return nil, &storageErrors.ScanningPSQLError{Err: err}
			}
			queryOutput = append(queryOutput, row)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningPSQLError{Err: err}
		}
		return queryOutput, nil
	})
}

// PendingCommissions lists deposits of referred users whose commission was never applied.
func (s *Storage) PendingCommissions(ctx context.Context, limit int) ([]modelstorage.CommissionEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, pendingCommissionsQuery)
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return run(ctx, s.log, "listing pending commissions", func() ([]modelstorage.CommissionEntry, error) {
		rows, err := selectStmt.QueryContext(ctx, limit)
		if err != nil {
			return nil, wrapExecution(err)
		}
		defer rows.Close()
		var queryOutput []modelstorage.CommissionEntry
		for rows.Next() {
			var row modelstorage.CommissionEntry
			if err = rows.Scan(&row.DepositID, &row.DepositorID, &row.ReferrerID, &row.DepositAmount); err != nil {
				return nil, &storageErrors.ScanningPSQLError{Err: err}
			}
			queryOutput = append(queryOutput, row)
		}
		if err = rows.Err(); err != nil {
			return nil, &storageErrors.ScanningPSQLError{Err: err}
		}
		return queryOutput, nil
	})
}

func (s *Storage) createTables(ctx context.Context) error {
	var queries []string
	query := `CREATE TABLE IF NOT EXISTS users (
		id                 BIGSERIAL      PRIMARY KEY,
		login              TEXT           NOT NULL UNIQUE,
		referrer_id        BIGINT,
		deposited_total    NUMERIC(14, 2) NOT NULL DEFAULT 0,
		bonus_balance      NUMERIC(14, 2) NOT NULL DEFAULT 0,
		commission_balance NUMERIC(14, 2) NOT NULL DEFAULT 0,
		referral_earned    NUMERIC(14, 2) NOT NULL DEFAULT 0,
		referral_generated NUMERIC(14, 2) NOT NULL DEFAULT 0
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS deposits (
		id           BIGSERIAL      PRIMARY KEY,
		user_id      BIGINT         NOT NULL,
		login        TEXT           NOT NULL,
		amount       NUMERIC(14, 2) NOT NULL,
		bonus        NUMERIC(14, 2) NOT NULL,
		provider     TEXT           NOT NULL,
		operation_id TEXT           NOT NULL,
		created_at   TIMESTAMPTZ    NOT NULL,
		processed_at TIMESTAMPTZ    NOT NULL,
		UNIQUE (provider, operation_id)
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS bonus_tiers (
		id         BIGSERIAL      PRIMARY KEY,
		position   INTEGER        NOT NULL DEFAULT 0,
		amount_min NUMERIC(14, 2) NOT NULL,
		amount_max NUMERIC(14, 2),
		multiplier NUMERIC(6, 4)  NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS stats (
		id             INTEGER        PRIMARY KEY,
		deposits_total NUMERIC(16, 2) NOT NULL DEFAULT 0
	);`
	queries = append(queries, query)
	query = `INSERT INTO stats (id, deposits_total) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS referral_commissions (
		deposit_id  BIGINT         PRIMARY KEY,
		referrer_id BIGINT         NOT NULL,
		amount      NUMERIC(14, 2) NOT NULL,
		created_at  TIMESTAMPTZ    NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS invoices (
		id         BIGSERIAL      PRIMARY KEY,
		user_id    BIGINT         NOT NULL,
		login      TEXT           NOT NULL,
		amount     NUMERIC(14, 2) NOT NULL,
		created_at TIMESTAMPTZ    NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS wallets (
		user_id    BIGINT      NOT NULL,
		kind       TEXT        NOT NULL,
		address    TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (kind, address),
		UNIQUE (user_id, kind)
	);`
	queries = append(queries, query)
	for _, subquery := range queries {
		_, err := s.DB.ExecContext(ctx, subquery)
		if err != nil {
			return err
		}
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
