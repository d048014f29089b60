package track

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscreen/sigscreen/internal/signal"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), 5*time.Second), mock
}

func TestPostgresStoreAppend(t *testing.T) {
	store, mock := newMockStore(t)
	sig := longSignal("s1", "AAAUSDT", time.Hour)

	mock.ExpectExec(`INSERT INTO signals`).
		WithArgs(
			sig.ID, sig.Symbol, string(sig.Type), sig.Price, sig.Rating, sig.Confidence,
			sig.TrendScore, sig.RiskScore, sig.Regime, sig.StopLoss, sig.TPConservative,
			sig.TPAggressive, sqlmock.AnyArg(), sig.CreatedAt, string(sig.Outcome.State)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Append(context.Background(), sig))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	sig := longSignal("s1", "AAAUSDT", time.Hour)
	sig.Outcome = signal.Outcome{
		State:      signal.OutcomeSuccess,
		PnLPercent: 3,
		ExitPrice:  103,
		ResolvedAt: &now,
	}

	mock.ExpectExec(`UPDATE signals`).
		WithArgs(sig.ID, "success", 3.0, 103.0, &now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Update(context.Background(), sig))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateMissingSignal(t *testing.T) {
	store, mock := newMockStore(t)
	sig := longSignal("ghost", "AAAUSDT", time.Hour)

	mock.ExpectExec(`UPDATE signals`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), sig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgresStoreLoad(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Now().UTC().Add(-time.Hour)
	resolved := time.Now().UTC()
	pnl := 3.0
	exit := 103.0
	details := []byte(`{"sizing":{"size_usd":250},"profile":{"valid":false},"whale":{"bias":"neutral"}}`)

	rows := sqlmock.NewRows([]string{
		"id", "symbol", "type", "price", "rating", "confidence", "trend_score",
		"risk_score", "regime", "stop_loss", "tp_conservative", "tp_aggressive",
		"details", "created_at", "outcome_state", "pnl_percent", "exit_price", "resolved_at",
	}).AddRow(
		"s1", "AAAUSDT", "BIG_PUMP", 100.0, 75, 0.6, 5,
		3, "neutral", 98.0, 103.0, 106.0,
		details, created, "success", &pnl, &exit, &resolved,
	)

	mock.ExpectQuery(`SELECT .+ FROM signals`).WillReturnRows(rows)

	signals, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "s1", sig.ID)
	assert.Equal(t, signal.TypeBigPump, sig.Type)
	assert.Equal(t, signal.OutcomeSuccess, sig.Outcome.State)
	assert.InDelta(t, 3.0, sig.Outcome.PnLPercent, 1e-9)
	assert.InDelta(t, 250.0, sig.Sizing.SizeUSD, 1e-9)
	assert.Equal(t, "neutral", string(sig.Whale.Bias))
	assert.NoError(t, mock.ExpectationsWereMet())
}
