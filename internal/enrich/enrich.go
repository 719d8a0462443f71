// Package enrich turns a raw beholdning change row into the flat item shape
// clients consume, resolving the three reference ids to display names.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/munkholm-systems/lagerpuls/internal/event"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 2 * time.Second

var errMissingLookups = errors.New("lookup dependency is required")

// Lookups resolves reference ids to display names. The inventory service is
// the production implementation.
type Lookups interface {
	KategoriNavn(ctx context.Context, id int64) (string, error)
	LokationNavn(ctx context.Context, id int64) (string, error)
	EnhedNavn(ctx context.Context, id int64) (string, error)
}

// ResolverConfig carries the dependencies for a Resolver.
type ResolverConfig struct {
	Lookups       Lookups
	LookupTimeout time.Duration
	Logger        *zap.Logger
}

// Resolver performs the three independent point lookups for one event. A
// miss, error, or timeout on any lookup yields the unknown label; resolution
// never fails the broadcast path.
type Resolver struct {
	lookups Lookups
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver validates dependencies and returns a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Lookups == nil {
		return nil, errMissingLookups
	}
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lookups: cfg.Lookups, timeout: timeout, logger: logger}, nil
}

// EnrichRow maps a raw change row onto an Item with resolved display names.
func (r *Resolver) EnrichRow(ctx context.Context, row map[string]any) event.Item {
	item := event.ItemFromRow(row)
	item.Kategori = r.resolve(ctx, row, "kategori_id", r.lookups.KategoriNavn)
	item.Lokation = r.resolve(ctx, row, "lokation_id", r.lookups.LokationNavn)
	item.Enhed = r.resolve(ctx, row, "enhed_id", r.lookups.EnhedNavn)
	return item
}

func (r *Resolver) resolve(ctx context.Context, row map[string]any, column string, lookup func(context.Context, int64) (string, error)) string {
	id, ok := event.Int64Field(row, column)
	if !ok {
		return event.UnknownLabel
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, err := lookup(lookupCtx, id)
	if err != nil {
		r.logger.Warn("reference lookup failed",
			zap.String("column", column),
			zap.Int64("id", id),
			zap.Error(err))
		return event.UnknownLabel
	}
	return name
}
