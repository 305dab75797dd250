package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// Vessel returns the most recent static and voyage report for mmsi.
func (s *Store) Vessel(ctx context.Context, mmsi int64) (*models.StaticVoyage, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE mmsi = ?
		ORDER BY tagblock_timestamp DESC NULLS LAST LIMIT 1`, staticColumns, TableStatic)

	var (
		v  models.StaticVoyage
		ts sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, query, mmsi).Scan(
		&v.ID, &v.RepeatIndicator, &v.MMSI, &v.AISVersion, &v.IMO, &v.CallSign, &v.ShipName,
		&v.TypeOfShipAndCargo, &v.ToBow, &v.ToStern, &v.ToPort, &v.ToStarboard,
		&v.PositionFixingDevice, &v.ETA, &v.MaxPresentStaticDraught, &v.Destination, &v.DTE,
		&ts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vessel %d: %w", mmsi, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("vessel query failed: %w", err)
	}
	v.TagBlock.Timestamp = ts.Int64
	return &v, nil
}

// Vessels summarises the vessels with position reports, busiest first.
func (s *Store) Vessels(ctx context.Context, limit int) ([]models.VesselSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(`
		SELECT p.mmsi, COUNT(*) AS n, MIN(p.tagblock_timestamp), MAX(p.tagblock_timestamp), s.ship_name
		FROM %s p
		LEFT JOIN (
			SELECT mmsi, arg_max(ship_name, COALESCE(tagblock_timestamp, 0)) AS ship_name
			FROM %s GROUP BY mmsi
		) s ON s.mmsi = p.mmsi
		WHERE %s
		GROUP BY p.mmsi, s.ship_name
		ORDER BY n DESC, p.mmsi
		LIMIT %d`, TablePositions, TableStatic, validPositionJoined, limit)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vessels query failed: %w", err)
	}
	defer rows.Close()

	var vessels []models.VesselSummary
	for rows.Next() {
		var (
			v           models.VesselSummary
			first, last sql.NullInt64
			name        sql.NullString
		)
		if err := rows.Scan(&v.MMSI, &v.Positions, &first, &last, &name); err != nil {
			return nil, fmt.Errorf("scan vessel: %w", err)
		}
		v.ShipName = name.String
		if first.Valid {
			v.FirstSeen = time.Unix(first.Int64, 0).UTC()
		}
		if last.Valid {
			v.LastSeen = time.Unix(last.Int64, 0).UTC()
		}
		vessels = append(vessels, v)
	}
	return vessels, rows.Err()
}

// Stats returns row counts and the covered time range. The result is cached
// until the next insert.
func (s *Store) Stats(ctx context.Context) (*models.DatabaseStats, error) {
	s.statsMu.RLock()
	cached, gen := s.statsCache, s.statsGen
	s.statsMu.RUnlock()
	if cached != nil {
		out := *cached
		return &out, nil
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		stats        models.DatabaseStats
		minTs, maxTs sql.NullInt64
	)
	query := fmt.Sprintf(`
		SELECT
			(SELECT COUNT(*) FROM %[1]s),
			(SELECT COUNT(*) FROM %[2]s),
			(SELECT COUNT(*) FROM (SELECT mmsi FROM %[1]s UNION SELECT mmsi FROM %[2]s)),
			(SELECT MIN(tagblock_timestamp) FROM %[1]s),
			(SELECT MAX(tagblock_timestamp) FROM %[1]s)`, TablePositions, TableStatic)
	err = s.db.QueryRowContext(ctx, query).Scan(
		&stats.PositionReports, &stats.StaticReports, &stats.Vessels, &minTs, &maxTs)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	if minTs.Valid && maxTs.Valid {
		stats.TimeRange = &models.TimeRange{
			Start: time.Unix(minTs.Int64, 0).UTC(),
			End:   time.Unix(maxTs.Int64, 0).UTC(),
		}
	}

	if s.afterStatsQuery != nil {
		s.afterStatsQuery()
	}

	s.statsMu.Lock()
	if s.statsGen == gen {
		s.statsCache = &stats
	}
	s.statsMu.Unlock()

	out := stats
	return &out, nil
}
