package main

import (
	"fmt"
	"log/slog"
	"net/http"
)

func NewTableSource(cfg *SourceConfig, logger *slog.Logger) (TableSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source config is required")
	}

	switch cfg.Type {
	case SourceHTTP:
		return NewHTTPSource(cfg, &http.Client{}, logger)
	case SourceSQLite:
		return NewSQLSource(cfg, logger)
	case SourcePostgres:
		fallthrough
	default:
		return NewSQLSource(cfg, logger)
	}
}
