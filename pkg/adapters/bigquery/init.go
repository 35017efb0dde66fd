// Package bigquery provides a BigQuery warehouse adapter for lookpipe.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/lookpipe/pkg/adapters/bigquery"
package bigquery

import (
	"log/slog"

	"github.com/leapstack-labs/lookpipe/pkg/adapter"
)

func init() {
	adapter.Register("bigquery", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
