package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/lookpipe/pkg/frame"
)

// ParquetSink writes each dataset to <Dir>/<dataset>.parquet.
type ParquetSink struct {
	Dir string
}

// Name implements Sink.
func (s *ParquetSink) Name() string { return "parquet" }

// Path returns the file a dataset is written to.
func (s *ParquetSink) Path(dataset string) string {
	return filepath.Join(s.Dir, dataset+".parquet")
}

// Write implements Sink.
func (s *ParquetSink) Write(ctx context.Context, dataset string, lf *frame.LazyFrame) (int64, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := lf.WriteParquet(ctx, s.Path(dataset)); err != nil {
		return 0, err
	}
	return lf.Count(ctx)
}
