package journal

import (
	"database/sql"
	"fmt"
)

// SoundActivity represents per-source playback statistics
type SoundActivity struct {
	Src         string `json:"src"`
	PlayCount   int    `json:"play_count"`
	FinishCount int    `json:"finish_count"`
	LastHeard   int64  `json:"last_heard"` // Unix timestamp
}

// FailureRecord represents one recorded failure or error-variant event
type FailureRecord struct {
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	SoundID   string `json:"sound_id,omitempty"`
	Src       string `json:"src,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     bool   `json:"error"`
}

// ScopeActivity represents event counts per isolation scope label
type ScopeActivity struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary provides overall journal statistics
type Summary struct {
	TotalEvents    int   `json:"total_events"`
	UniqueSounds   int   `json:"unique_sounds"`
	PlayCount      int   `json:"play_count"`
	FinishCount    int   `json:"finish_count"`
	FailureCount   int   `json:"failure_count"`
	FirstTimestamp int64 `json:"first_timestamp"`
	LastTimestamp  int64 `json:"last_timestamp"`
}

// GetKindCounts returns how many events of each kind the journal holds
func GetKindCounts(db *sql.DB, filter QueryFilter) (map[string]int, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	baseQuery := `
		SELECT kind, COUNT(*) as count
		FROM playback_events`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
	}

	baseQuery += `
		GROUP BY kind
		ORDER BY count DESC`

	rows, err := db.Query(baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query kind counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind count row: %w", err)
		}
		counts[kind] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kind count rows: %w", err)
	}

	return counts, nil
}

// GetTopSounds returns the most-played sources with play and finish counts
func GetTopSounds(db *sql.DB, filter QueryFilter) ([]SoundActivity, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	baseQuery := `
		SELECT
			src,
			SUM(CASE WHEN kind = 'play' THEN 1 ELSE 0 END) as play_count,
			SUM(CASE WHEN kind = 'finish' THEN 1 ELSE 0 END) as finish_count,
			MAX(timestamp) as last_heard
		FROM playback_events
		WHERE src != ''`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		baseQuery += " AND " + whereClause
	}

	baseQuery += `
		GROUP BY src
		HAVING play_count > 0
		ORDER BY play_count DESC, last_heard DESC`

	if filter.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.Query(baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top sounds: %w", err)
	}
	defer rows.Close()

	var results []SoundActivity
	for rows.Next() {
		var activity SoundActivity

		err := rows.Scan(&activity.Src, &activity.PlayCount, &activity.FinishCount, &activity.LastHeard)
		if err != nil {
			return nil, fmt.Errorf("failed to scan top sound row: %w", err)
		}

		results = append(results, activity)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top sound rows: %w", err)
	}

	return results, nil
}

// GetRecentFailures returns failure and error-variant events, newest first
func GetRecentFailures(db *sql.DB, filter QueryFilter) ([]FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	baseQuery := `
		SELECT timestamp, kind, sound_id, src, reason, error
		FROM playback_events
		WHERE (error = 1 OR kind = 'failure')`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		baseQuery += " AND " + whereClause
	}

	baseQuery += `
		ORDER BY timestamp DESC`

	if filter.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			baseQuery += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := db.Query(baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent failures: %w", err)
	}
	defer rows.Close()

	var results []FailureRecord
	for rows.Next() {
		var record FailureRecord
		var soundID, src, reason sql.NullString
		var errorInt int

		err := rows.Scan(&record.Timestamp, &record.Kind, &soundID, &src, &reason, &errorInt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}

		if soundID.Valid {
			record.SoundID = soundID.String
		}
		if src.Valid {
			record.Src = src.String
		}
		if reason.Valid {
			record.Reason = reason.String
		}
		record.Error = errorInt == 1

		results = append(results, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure rows: %w", err)
	}

	return results, nil
}

// GetScopeActivity returns event counts per isolation scope label
func GetScopeActivity(db *sql.DB, filter QueryFilter) ([]ScopeActivity, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	baseQuery := `
		SELECT json_each.value as label, COUNT(*) as count
		FROM playback_events, json_each(playback_events.scope)`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
	}

	baseQuery += `
		GROUP BY json_each.value
		ORDER BY count DESC`

	if filter.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.Query(baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scope activity: %w", err)
	}
	defer rows.Close()

	var results []ScopeActivity
	for rows.Next() {
		var activity ScopeActivity
		if err := rows.Scan(&activity.Label, &activity.Count); err != nil {
			return nil, fmt.Errorf("failed to scan scope activity row: %w", err)
		}
		results = append(results, activity)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scope activity rows: %w", err)
	}

	return results, nil
}

// GetSummary returns overall journal statistics
func GetSummary(db *sql.DB, filter QueryFilter) (*Summary, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	summaryQuery := `
		SELECT
			COUNT(*) as total_events,
			COUNT(DISTINCT CASE WHEN src != '' THEN src END) as unique_sounds,
			SUM(CASE WHEN kind = 'play' THEN 1 ELSE 0 END) as play_count,
			SUM(CASE WHEN kind = 'finish' THEN 1 ELSE 0 END) as finish_count,
			SUM(CASE WHEN error = 1 OR kind = 'failure' THEN 1 ELSE 0 END) as failure_count,
			COALESCE(MIN(timestamp), 0) as first_timestamp,
			COALESCE(MAX(timestamp), 0) as last_timestamp
		FROM playback_events`

	whereClause, args := filter.BuildWhereClause()
	if whereClause != "" {
		summaryQuery += " WHERE " + whereClause
	}

	var summary Summary
	var playCount, finishCount, failureCount sql.NullInt64
	err := db.QueryRow(summaryQuery, args...).Scan(
		&summary.TotalEvents,
		&summary.UniqueSounds,
		&playCount,
		&finishCount,
		&failureCount,
		&summary.FirstTimestamp,
		&summary.LastTimestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal summary: %w", err)
	}

	// SUM over zero rows yields NULL
	summary.PlayCount = int(playCount.Int64)
	summary.FinishCount = int(finishCount.Int64)
	summary.FailureCount = int(failureCount.Int64)

	return &summary, nil
}
