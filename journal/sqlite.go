package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(client_id, instrument, kind, quantity, price, time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ClientID, o.Instrument, o.Kind, o.Quantity, o.Price, o.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, instrument, quantity, entry_price, exit_price, open_time, close_time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Instrument, t.Quantity, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.Reason,
	)
	return err
}

func (j *SQLiteJournal) SessionSpent(day time.Time) (float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var spent sql.NullFloat64
	err := j.db.QueryRow(`
		SELECT SUM(quantity * price) FROM orders
		WHERE kind = 'entry' AND time >= ? AND time < ?`,
		start, end,
	).Scan(&spent)
	if err != nil {
		return 0, err
	}
	if !spent.Valid {
		return 0, nil
	}
	return spent.Float64, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
