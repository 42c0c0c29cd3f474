package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

type ArchiveRepository interface {
	Save(ctx context.Context, record *entity.GameRecord) error
	ListRecent(ctx context.Context, limit int) ([]*entity.GameRecord, error)
}

type archiveRepository struct {
	conn *sql.DB
}

func NewArchiveRepository(conn *sql.DB) ArchiveRepository {
	return &archiveRepository{
		conn: conn,
	}
}

func (that *archiveRepository) Save(ctx context.Context, record *entity.GameRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return fmt.Errorf("can't marshal players: %w", err)
	}

	query := `INSERT OR REPLACE INTO games (session_id, room_code, winning_team, phases, players, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = that.conn.ExecContext(ctx, query,
		record.SessionID,
		record.RoomCode,
		string(record.WinningTeam),
		record.Phases,
		string(players),
		record.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("can't save game: %w", err)
	}

	return nil
}

func (that *archiveRepository) ListRecent(ctx context.Context, limit int) ([]*entity.GameRecord, error) {
	query := `SELECT session_id, room_code, winning_team, phases, players, finished_at
		FROM games ORDER BY finished_at DESC LIMIT ?`

	rows, err := that.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("can't list games: %w", err)
	}
	defer rows.Close()

	var records []*entity.GameRecord
	for rows.Next() {
		var (
			record     entity.GameRecord
			team       string
			players    string
			finishedAt int64
		)

		if err = rows.Scan(&record.SessionID, &record.RoomCode, &team, &record.Phases, &players, &finishedAt); err != nil {
			return nil, fmt.Errorf("can't scan game: %w", err)
		}

		if err = json.Unmarshal([]byte(players), &record.Players); err != nil {
			return nil, fmt.Errorf("can't unmarshal players: %w", err)
		}

		record.WinningTeam = entity.Team(team)
		record.FinishedAt = time.UnixMilli(finishedAt).UTC()
		records = append(records, &record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read games: %w", err)
	}

	return records, nil
}
