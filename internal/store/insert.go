package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// InsertPositions appends position reports to ais_msg_123.
func (s *Store) InsertPositions(ctx context.Context, reports []*models.PositionReport) error {
	if len(reports) == 0 {
		return nil
	}
	return s.appendRows(ctx, TablePositions, len(reports), func(i int) []driver.Value {
		return positionRow(reports[i])
	})
}

func positionRow(p *models.PositionReport) []driver.Value {
	return []driver.Value{
		p.ID,
		p.RepeatIndicator,
		p.MMSI,
		p.NavStatus,
		p.RotOverRange,
		p.Rot,
		p.Sog,
		p.PositionAccuracy,
		p.X,
		p.Y,
		p.Cog,
		p.TrueHeading,
		p.Timestamp,
		p.SpecialManoeuvre,
		p.Spare,
		p.Raim,
		p.SyncState,
		nullInt32(p.SlotTimeout),
		nullInt32(p.SlotNumber),
		p.GroupJSON(),
		nullableLineCount(p.LineCount),
		nullString(p.Station),
		nullTimestamp(p.TagBlock.Timestamp),
		nullInt32(p.ReceivedStations),
		nullInt32(p.SlotOffset),
		nullInt32(p.UTCHour),
		nullInt32(p.UTCMin),
		nullInt32(p.SlotIncrement),
		nullInt32(p.SlotsToAllocate),
		nullBool(p.KeepFlag),
	}
}

// InsertStatic appends static and voyage reports to ais_msg_5.
func (s *Store) InsertStatic(ctx context.Context, reports []*models.StaticVoyage) error {
	if len(reports) == 0 {
		return nil
	}
	return s.appendRows(ctx, TableStatic, len(reports), func(i int) []driver.Value {
		v := reports[i]
		return []driver.Value{
			v.ID,
			v.RepeatIndicator,
			v.MMSI,
			v.AISVersion,
			v.IMO,
			v.CallSign,
			v.ShipName,
			v.TypeOfShipAndCargo,
			v.ToBow,
			v.ToStern,
			v.ToPort,
			v.ToStarboard,
			v.PositionFixingDevice,
			v.ETA,
			v.MaxPresentStaticDraught,
			v.Destination,
			v.DTE,
			nullTimestamp(v.TagBlock.Timestamp),
		}
	})
}

// appendRows writes n rows with the DuckDB Appender on a dedicated connection.
// The batch runs in one transaction, so a failed row leaves no partial batch.
func (s *Store) appendRows(ctx context.Context, table string, n int, row func(int) []driver.Value) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("insert into %s: begin: %w", table, err)
	}

	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", table)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}

		for i := 0; i < n; i++ {
			if err := appender.AppendRow(row(i)...); err != nil {
				appender.Close()
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Close()
	})
	if err != nil {
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
			s.log.Warn("rollback failed", zap.String("table", table), zap.Error(rbErr))
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("insert into %s: commit: %w", table, err)
	}

	s.clearStatsCache()
	s.log.Debug("batch appended",
		zap.String("table", table),
		zap.Int("rows", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func nullInt32(p *int32) driver.Value {
	if p == nil {
		return nil
	}
	return *p
}

func nullBool(p *bool) driver.Value {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(v string) driver.Value {
	if v == "" {
		return nil
	}
	return v
}

func nullableLineCount(v int32) driver.Value {
	if v == 0 {
		return nil
	}
	return v
}

func nullTimestamp(v int64) driver.Value {
	if v == 0 {
		return nil
	}
	return v
}
