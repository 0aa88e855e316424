package server

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/kartikbazzad/bunbase/bunlog/internal/config"
	"github.com/kartikbazzad/bunbase/bunlog/transport"
)

// Store is a transport the server can both write to and query.
type Store interface {
	transport.Transport
	transport.Querier
	io.Closer
}

// OpenStore creates the store cfg selects.
func OpenStore(cfg config.Store, logger *slog.Logger) (Store, error) {
	switch cfg.Kind {
	case "", "memory":
		return transport.NewMemoryTransport(cfg.Capacity), nil
	case "file":
		ft, err := transport.OpenFile(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return ft, nil
	case "sqlite":
		st, err := transport.OpenSQLite(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}
