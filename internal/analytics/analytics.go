// Package analytics aggregates apply and remediation history into
// per-app statistics for the CLI and the web API.
package analytics

import (
	"database/sql"
	"fmt"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// AppStats summarizes an app's apply and remediation history.
type AppStats struct {
	AppID        string `json:"app_id"`
	Chats        int    `json:"chats"`
	Messages     int    `json:"messages"`
	Applies      int    `json:"applies"`
	Committed    int    `json:"committed"`
	Failed       int    `json:"failed"`
	FilesWritten int    `json:"files_written"`
	FilesRenamed int    `json:"files_renamed"`
	FilesDeleted int    `json:"files_deleted"`
	FilesEdited  int    `json:"files_edited"`
	FixAttempts  int    `json:"fix_attempts"`
	FixedErrors  int    `json:"fixed_errors"`
}

// QueryAppStats returns aggregate stats for one app. since may be a
// SQLite datetime string to bound the window; empty means all time.
func QueryAppStats(database DB, appID, since string) (*AppStats, error) {
	stats := &AppStats{AppID: appID}
	conn := database.Conn()

	if err := conn.QueryRow(
		`SELECT COUNT(*) FROM chats WHERE app_id = ?`, appID,
	).Scan(&stats.Chats); err != nil {
		return nil, fmt.Errorf("count chats: %w", err)
	}

	if err := conn.QueryRow(
		`SELECT COUNT(*) FROM messages m
		 INNER JOIN chats c ON m.chat_id = c.id
		 WHERE c.app_id = ?`, appID,
	).Scan(&stats.Messages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(committed), 0),
		       COALESCE(SUM(CASE WHEN error != '' AND NOT committed THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(wrote), 0),
		       COALESCE(SUM(renamed), 0),
		       COALESCE(SUM(deleted), 0),
		       COALESCE(SUM(edited), 0)
		FROM apply_results WHERE app_id = ?`
	args := []interface{}{appID}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	if err := conn.QueryRow(query, args...).Scan(
		&stats.Applies, &stats.Committed, &stats.Failed,
		&stats.FilesWritten, &stats.FilesRenamed, &stats.FilesDeleted, &stats.FilesEdited,
	); err != nil {
		return nil, fmt.Errorf("aggregate applies: %w", err)
	}

	fixQuery := `SELECT COUNT(*), COUNT(DISTINCT fingerprint) FROM fix_attempts WHERE app_id = ?`
	fixArgs := []interface{}{appID}
	if since != "" {
		fixQuery += ` AND timestamp >= ?`
		fixArgs = append(fixArgs, since)
	}
	if err := conn.QueryRow(fixQuery, fixArgs...).Scan(&stats.FixAttempts, &stats.FixedErrors); err != nil {
		return nil, fmt.Errorf("aggregate fix attempts: %w", err)
	}

	return stats, nil
}

// SourceCount is the number of remediation attempts from one source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// QueryFixSources breaks remediation attempts down by detection source.
func QueryFixSources(database DB, appID, since string) ([]SourceCount, error) {
	query := `SELECT source, COUNT(*) FROM fix_attempts WHERE app_id = ?`
	args := []interface{}{appID}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY source ORDER BY COUNT(*) DESC, source`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fix sources: %w", err)
	}
	defer rows.Close()

	var results []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan fix source: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// DailyActivity is one day's apply volume.
type DailyActivity struct {
	Date      string `json:"date"`
	Applies   int    `json:"applies"`
	Committed int    `json:"committed"`
}

// QueryDailyActivity returns apply counts per day for the last n days.
func QueryDailyActivity(database DB, appID string, days int) ([]DailyActivity, error) {
	rows, err := database.Conn().Query(
		`SELECT date(timestamp), COUNT(*), COALESCE(SUM(committed), 0)
		 FROM apply_results
		 WHERE app_id = ? AND timestamp >= datetime('now', ?)
		 GROUP BY date(timestamp) ORDER BY date(timestamp)`,
		appID, fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()

	var results []DailyActivity
	for rows.Next() {
		var da DailyActivity
		if err := rows.Scan(&da.Date, &da.Applies, &da.Committed); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		results = append(results, da)
	}
	return results, rows.Err()
}
