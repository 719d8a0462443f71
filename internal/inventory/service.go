package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/munkholm-systems/lagerpuls/internal/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")

	// ErrNotFound indicates a reference id with no matching row.
	ErrNotFound = errors.New("inventory: reference not found")
)

// ServiceConfig carries the dependencies for a Service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service exposes the read side of the inventory schema: display-name
// lookups for the enricher and the full enriched snapshot.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService validates dependencies and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// KategoriNavn resolves a category id to its display name.
func (s *Service) KategoriNavn(ctx context.Context, id int64) (string, error) {
	var row Kategori
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return "", wrapLookupError(err)
	}
	return row.Navn, nil
}

// LokationNavn resolves a location id to its display name.
func (s *Service) LokationNavn(ctx context.Context, id int64) (string, error) {
	var row Lokation
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return "", wrapLookupError(err)
	}
	return row.Navn, nil
}

// EnhedNavn resolves a unit id to its display name.
func (s *Service) EnhedNavn(ctx context.Context, id int64) (string, error) {
	var row Enhed
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return "", wrapLookupError(err)
	}
	return row.Value, nil
}

func wrapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Snapshot returns every inventory row with the three references resolved to
// display names. Clients load this once and keep it current from the push
// channel afterwards. Missing references resolve to the unknown label, never
// an error, matching the broadcast path.
func (s *Service) Snapshot(ctx context.Context) ([]event.Item, error) {
	var rows []Beholdning
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	kategorier, lokationer, enheder, err := s.lookupTables(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]event.Item, 0, len(rows))
	for _, row := range rows {
		item := event.Item{
			ID:          row.ID,
			Navn:        row.Navn,
			Beskrivelse: row.Beskrivelse,
			Maengde:     row.Maengde,
			Minimum:     row.Minimum,
			Kategori:    labelOr(kategorier, row.KategoriID),
			Lokation:    labelOr(lokationer, row.LokationID),
			Enhed:       labelOr(enheder, row.EnhedID),
			Oprettet:    row.Oprettet.UTC().Format(time.RFC3339),
		}
		items = append(items, item)
	}
	return items, nil
}

// Options carries the reference lists the frontend's select inputs are
// populated from.
type Options struct {
	Kategorier []Kategori `json:"kategorier"`
	Lokationer []Lokation `json:"lokationer"`
	Enheder    []Enhed    `json:"enheder"`
}

// Options returns all three reference tables.
func (s *Service) Options(ctx context.Context) (Options, error) {
	var options Options
	if err := s.db.WithContext(ctx).Order("id").Find(&options.Kategorier).Error; err != nil {
		return Options{}, err
	}
	if err := s.db.WithContext(ctx).Order("id").Find(&options.Lokationer).Error; err != nil {
		return Options{}, err
	}
	if err := s.db.WithContext(ctx).Order("id").Find(&options.Enheder).Error; err != nil {
		return Options{}, err
	}
	return options, nil
}

func (s *Service) lookupTables(ctx context.Context) (map[int64]string, map[int64]string, map[int64]string, error) {
	var kategoriRows []Kategori
	if err := s.db.WithContext(ctx).Find(&kategoriRows).Error; err != nil {
		return nil, nil, nil, err
	}
	var lokationRows []Lokation
	if err := s.db.WithContext(ctx).Find(&lokationRows).Error; err != nil {
		return nil, nil, nil, err
	}
	var enhedRows []Enhed
	if err := s.db.WithContext(ctx).Find(&enhedRows).Error; err != nil {
		return nil, nil, nil, err
	}

	kategorier := make(map[int64]string, len(kategoriRows))
	for _, row := range kategoriRows {
		kategorier[row.ID] = row.Navn
	}
	lokationer := make(map[int64]string, len(lokationRows))
	for _, row := range lokationRows {
		lokationer[row.ID] = row.Navn
	}
	enheder := make(map[int64]string, len(enhedRows))
	for _, row := range enhedRows {
		enheder[row.ID] = row.Value
	}
	return kategorier, lokationer, enheder, nil
}

func labelOr(labels map[int64]string, id int64) string {
	if label, ok := labels[id]; ok {
		return label
	}
	return event.UnknownLabel
}
