package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Export formats.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Export copies a whole table to a Parquet or CSV file.
func (s *Store) Export(ctx context.Context, table, path, format string) error {
	if table != TablePositions && table != TableStatic {
		return fmt.Errorf("%w: unknown table %q", ErrInvalidParams, table)
	}
	if path == "" {
		return fmt.Errorf("%w: empty export path", ErrInvalidParams)
	}

	var options string
	switch strings.ToLower(format) {
	case FormatParquet, "":
		options = "FORMAT PARQUET"
	case FormatCSV:
		options = "FORMAT CSV, HEADER"
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidParams, format)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := fmt.Sprintf("COPY %s TO '%s' (%s)", table, escapeLiteral(path), options)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("export %s: %w", table, err)
	}
	s.log.Info("table exported", zap.String("table", table), zap.String("path", path))
	return nil
}
