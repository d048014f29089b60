package track

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sigscreen/sigscreen/internal/signal"
)

// PostgresStore keeps the signal history in a signals table, one row per
// signal, updated in place as outcomes resolve. The analytics payloads
// (sizing, profile, whale) travel as a JSONB column.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

type signalDetails struct {
	Sizing  json.RawMessage `json:"sizing"`
	Profile json.RawMessage `json:"profile"`
	Whale   json.RawMessage `json:"whale"`
}

func (s *PostgresStore) Append(ctx context.Context, sig signal.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	details, err := marshalDetails(sig)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO signals (id, symbol, type, price, rating, confidence,
			trend_score, risk_score, regime, stop_loss, tp_conservative,
			tp_aggressive, details, created_at, outcome_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.ExecContext(ctx, query,
		sig.ID, sig.Symbol, string(sig.Type), sig.Price, sig.Rating, sig.Confidence,
		sig.TrendScore, sig.RiskScore, sig.Regime, sig.StopLoss, sig.TPConservative,
		sig.TPAggressive, details, sig.CreatedAt, string(sig.Outcome.State))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate signal %s: %w", sig.ID, err)
		}
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, sig signal.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE signals
		SET outcome_state = $2, pnl_percent = $3, exit_price = $4, resolved_at = $5
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		sig.ID, string(sig.Outcome.State), sig.Outcome.PnLPercent,
		sig.Outcome.ExitPrice, sig.Outcome.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update signal outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("signal %s not found", sig.ID)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]signal.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, type, price, rating, confidence, trend_score,
			risk_score, regime, stop_loss, tp_conservative, tp_aggressive,
			details, created_at, outcome_state, pnl_percent, exit_price, resolved_at
		FROM signals
		ORDER BY created_at ASC`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []signal.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return signals, nil
}

func marshalDetails(sig signal.Signal) ([]byte, error) {
	sizing, err := json.Marshal(sig.Sizing)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sizing: %w", err)
	}
	profile, err := json.Marshal(sig.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	whale, err := json.Marshal(sig.Whale)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal whale activity: %w", err)
	}
	return json.Marshal(signalDetails{Sizing: sizing, Profile: profile, Whale: whale})
}

func scanSignal(rows *sqlx.Rows) (*signal.Signal, error) {
	var (
		sig          signal.Signal
		sigType      string
		regimeName   string
		detailsJSON  []byte
		outcomeState string
		pnlPercent   *float64
		exitPrice    *float64
		resolvedAt   *time.Time
	)

	err := rows.Scan(
		&sig.ID, &sig.Symbol, &sigType, &sig.Price, &sig.Rating, &sig.Confidence,
		&sig.TrendScore, &sig.RiskScore, &regimeName, &sig.StopLoss,
		&sig.TPConservative, &sig.TPAggressive, &detailsJSON, &sig.CreatedAt,
		&outcomeState, &pnlPercent, &exitPrice, &resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}

	sig.Type = signal.Type(sigType)
	sig.Regime = regimeName
	sig.Outcome.State = signal.OutcomeState(outcomeState)
	if pnlPercent != nil {
		sig.Outcome.PnLPercent = *pnlPercent
	}
	if exitPrice != nil {
		sig.Outcome.ExitPrice = *exitPrice
	}
	sig.Outcome.ResolvedAt = resolvedAt

	if len(detailsJSON) > 0 {
		var details signalDetails
		if err := json.Unmarshal(detailsJSON, &details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal details: %w", err)
		}
		if len(details.Sizing) > 0 {
			if err := json.Unmarshal(details.Sizing, &sig.Sizing); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sizing: %w", err)
			}
		}
		if len(details.Profile) > 0 {
			if err := json.Unmarshal(details.Profile, &sig.Profile); err != nil {
				return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
			}
		}
		if len(details.Whale) > 0 {
			if err := json.Unmarshal(details.Whale, &sig.Whale); err != nil {
				return nil, fmt.Errorf("failed to unmarshal whale activity: %w", err)
			}
		}
	}

	return &sig, nil
}
