// Package event defines the change envelope that flows from the datastore
// trigger through the bridge and hub, and the enriched item shape pushed to
// connected clients.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind enumerates the row mutations emitted by the notify trigger. The
// values match TG_OP so the trigger can pass them through verbatim.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// UnknownLabel is substituted for any reference that cannot be resolved to a
// display name. It is part of the wire contract with the frontend.
const UnknownLabel = "Ukendt"

var (
	// ErrMissingRow indicates an envelope carrying neither a new nor an old row.
	ErrMissingRow = errors.New("event: envelope carries no row")
	// ErrMissingRowID indicates that the relevant row lacks a numeric id.
	ErrMissingRowID = errors.New("event: row id missing or not numeric")
)

// ChangeEvent is one committed row mutation as emitted by the datastore.
// Record and OldRecord are flat maps keyed by storage column names.
type ChangeEvent struct {
	Kind      Kind           `json:"type"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
}

// Row returns the map the row identifier must be read from: the new row for
// inserts and updates, the old row for deletes.
func (e ChangeEvent) Row() map[string]any {
	if e.Kind == KindDelete {
		return e.OldRecord
	}
	if e.Record != nil {
		return e.Record
	}
	return e.OldRecord
}

// RowID extracts the stable integer identifier used as the reconciliation
// key on clients.
func (e ChangeEvent) RowID() (int64, error) {
	row := e.Row()
	if row == nil {
		return 0, ErrMissingRow
	}
	id, ok := Int64Field(row, "id")
	if !ok {
		return 0, ErrMissingRowID
	}
	return id, nil
}

// Validate reports whether the envelope is well formed enough to relay. It
// does not check business fields; a sparse row produces sparse output rather
// than a rejected event.
func (e ChangeEvent) Validate() error {
	if e.Record == nil && e.OldRecord == nil {
		return ErrMissingRow
	}
	if _, err := e.RowID(); err != nil {
		return err
	}
	return nil
}

// Item is the flat, enriched inventory row broadcast to clients and returned
// by the snapshot endpoint. The three reference ids are replaced by their
// resolved display names.
type Item struct {
	ID          int64  `json:"id"`
	Navn        string `json:"navn"`
	Beskrivelse string `json:"beskrivelse"`
	Maengde     int64  `json:"mængde"`
	Minimum     int64  `json:"minimum"`
	Kategori    string `json:"kategori"`
	Lokation    string `json:"lokation"`
	Enhed       string `json:"enhed"`
	Oprettet    string `json:"oprettet"`
}

// ItemFromRow maps the storage columns of a beholdning row onto an Item,
// leaving the three display names empty for the enricher to fill in.
func ItemFromRow(row map[string]any) Item {
	item := Item{}
	item.ID, _ = Int64Field(row, "id")
	item.Navn, _ = StringField(row, "navn")
	item.Beskrivelse, _ = StringField(row, "beskrivelse")
	item.Maengde, _ = Int64Field(row, "mængde")
	item.Minimum, _ = Int64Field(row, "min_mængde")
	item.Oprettet, _ = StringField(row, "oprettet")
	return item
}

// Frame is the envelope written on the push channel. Event names the logical
// push event clients listen for; Data carries either the enriched Item or,
// under the pass-through policy, the raw change envelope.
type Frame struct {
	Event string          `json:"event"`
	Kind  Kind            `json:"type,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Int64Field reads an integer column from a decoded JSON row, tolerating the
// numeric and string encodings different producers emit.
func Int64Field(row map[string]any, key string) (int64, bool) {
	value, ok := row[key]
	if !ok || value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case float64:
		return int64(typed), true
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseInt(typed, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// StringField reads a text column from a decoded JSON row.
func StringField(row map[string]any, key string) (string, bool) {
	value, ok := row[key]
	if !ok || value == nil {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		return typed, true
	default:
		return fmt.Sprintf("%v", typed), true
	}
}
