package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

const (
	// DefaultSearchLimit applies when SearchParams.Limit is zero.
	DefaultSearchLimit = 1000
	// MaxSearchLimit caps a single result page.
	MaxSearchLimit = 100000

	dateLayout = "2006-01-02"
)

// SearchParams filters position reports. Filters combine with AND; zero
// values are ignored.
type SearchParams struct {
	MMSIs      []int64
	StartDate  string // YYYY-MM-DD, inclusive
	EndDate    string // YYYY-MM-DD, inclusive
	PolygonWKT string
	Limit      int
	Offset     int
}

type searchQuery struct {
	where   string
	args    []any
	polygon orb.Polygon
	limit   int
	offset  int
}

func (p SearchParams) build() (searchQuery, error) {
	q := searchQuery{limit: p.Limit, offset: p.Offset}
	if q.limit == 0 {
		q.limit = DefaultSearchLimit
	}
	if q.limit < 0 || q.limit > MaxSearchLimit {
		return q, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidParams, MaxSearchLimit)
	}
	if q.offset < 0 {
		return q, fmt.Errorf("%w: offset must not be negative", ErrInvalidParams)
	}

	clauses := []string{validPosition}

	if len(p.MMSIs) > 0 {
		marks := make([]string, len(p.MMSIs))
		for i, m := range p.MMSIs {
			marks[i] = "?"
			q.args = append(q.args, m)
		}
		clauses = append(clauses, "mmsi IN ("+strings.Join(marks, ", ")+")")
	}

	var start, end time.Time
	if p.StartDate != "" {
		t, err := time.Parse(dateLayout, p.StartDate)
		if err != nil {
			return q, fmt.Errorf("%w: start date %q", ErrInvalidParams, p.StartDate)
		}
		start = t
		clauses = append(clauses, "tagblock_timestamp >= ?")
		q.args = append(q.args, start.Unix())
	}
	if p.EndDate != "" {
		t, err := time.Parse(dateLayout, p.EndDate)
		if err != nil {
			return q, fmt.Errorf("%w: end date %q", ErrInvalidParams, p.EndDate)
		}
		end = t
		clauses = append(clauses, "tagblock_timestamp < ?")
		q.args = append(q.args, end.AddDate(0, 0, 1).Unix())
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return q, fmt.Errorf("%w: end date before start date", ErrInvalidParams)
	}

	if p.PolygonWKT != "" {
		poly, err := wkt.UnmarshalPolygon(p.PolygonWKT)
		if err != nil {
			return q, fmt.Errorf("%w: polygon: %v", ErrInvalidParams, err)
		}
		if len(poly) == 0 || len(poly[0]) < 4 {
			return q, fmt.Errorf("%w: polygon needs a closed outer ring", ErrInvalidParams)
		}
		q.polygon = poly
		b := poly.Bound()
		clauses = append(clauses, "x BETWEEN ? AND ? AND y BETWEEN ? AND ?")
		q.args = append(q.args, b.Min.X(), b.Max.X(), b.Min.Y(), b.Max.Y())
	}

	q.where = strings.Join(clauses, " AND ")
	return q, nil
}

// Search returns position reports matching params, ordered by mmsi and time.
// Reports with unavailable positions are never returned.
func (s *Store) Search(ctx context.Context, params SearchParams) ([]models.PositionReport, error) {
	q, err := params.build()
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY mmsi, tagblock_timestamp NULLS LAST",
		positionColumns, TablePositions, q.where)
	// The bounding box prefilter is only an approximation of the polygon, so
	// paging happens after the exact containment check.
	if q.polygon == nil {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.limit, q.offset)
	}

	rows, err := s.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	results := make([]models.PositionReport, 0, 64)
	skipped := 0
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		if q.polygon != nil {
			if !planar.PolygonContains(q.polygon, orb.Point{p.X, p.Y}) {
				continue
			}
			if skipped < q.offset {
				skipped++
				continue
			}
			if len(results) >= q.limit {
				break
			}
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Track returns the valid positions of one vessel in time order within
// [start, end). Zero start or end leaves that side of the window open. A
// track longer than the row cap fails with ErrTooManyRows rather than being
// cut short.
func (s *Store) Track(ctx context.Context, mmsi int64, start, end time.Time) ([]models.PositionReport, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	where := "mmsi = ? AND " + validPosition
	args := []any{mmsi}
	if !start.IsZero() {
		where += " AND tagblock_timestamp >= ?"
		args = append(args, start.Unix())
	}
	if !end.IsZero() {
		where += " AND tagblock_timestamp < ?"
		args = append(args, end.Unix())
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY tagblock_timestamp NULLS LAST LIMIT %d",
		positionColumns, TablePositions, where, s.trackLimit+1)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("track query failed: %w", err)
	}
	defer rows.Close()

	var track []models.PositionReport
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		if len(track) == s.trackLimit {
			return nil, fmt.Errorf("%w: track of MMSI %d has more than %d positions, narrow the date range",
				ErrTooManyRows, mmsi, s.trackLimit)
		}
		track = append(track, p)
	}
	return track, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(r rowScanner) (models.PositionReport, error) {
	var (
		p            models.PositionReport
		slotTimeout  sql.NullInt32
		slotNumber   sql.NullInt32
		group        sql.NullString
		lineCount    sql.NullInt32
		station      sql.NullString
		tbTimestamp  sql.NullInt64
		received     sql.NullInt32
		slotOffset   sql.NullInt32
		utcHour      sql.NullInt32
		utcMin       sql.NullInt32
		slotIncr     sql.NullInt32
		slotsToAlloc sql.NullInt32
		keepFlag     sql.NullBool
	)
	err := r.Scan(
		&p.ID, &p.RepeatIndicator, &p.MMSI, &p.NavStatus, &p.RotOverRange, &p.Rot, &p.Sog,
		&p.PositionAccuracy, &p.X, &p.Y, &p.Cog, &p.TrueHeading, &p.Timestamp,
		&p.SpecialManoeuvre, &p.Spare, &p.Raim, &p.SyncState,
		&slotTimeout, &slotNumber, &group, &lineCount, &station, &tbTimestamp,
		&received, &slotOffset, &utcHour, &utcMin, &slotIncr, &slotsToAlloc, &keepFlag,
	)
	if err != nil {
		return p, fmt.Errorf("scan position: %w", err)
	}

	p.SlotTimeout = int32Value(slotTimeout)
	p.SlotNumber = int32Value(slotNumber)
	p.ReceivedStations = int32Value(received)
	p.SlotOffset = int32Value(slotOffset)
	p.UTCHour = int32Value(utcHour)
	p.UTCMin = int32Value(utcMin)
	p.SlotIncrement = int32Value(slotIncr)
	p.SlotsToAllocate = int32Value(slotsToAlloc)
	if keepFlag.Valid {
		v := keepFlag.Bool
		p.KeepFlag = &v
	}

	p.LineCount = lineCount.Int32
	p.Station = station.String
	p.TagBlock.Timestamp = tbTimestamp.Int64
	p.Group = parseGroup(group.String)
	return p, nil
}

func int32Value(n sql.NullInt32) *int32 {
	if !n.Valid {
		return nil
	}
	v := n.Int32
	return &v
}

func parseGroup(raw string) *models.TagGroup {
	if raw == "" || raw == "{}" {
		return nil
	}
	var g models.TagGroup
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil
	}
	return &g
}
