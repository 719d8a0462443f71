// Package inventory holds the storage models for the beholdning table and
// its three reference tables, plus the read-side service the hub uses for
// snapshots and display-name lookups.
package inventory

import "time"

// Beholdning is one inventory row. Column names follow the storage schema,
// which the change trigger also emits verbatim.
type Beholdning struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	Oprettet    time.Time `gorm:"column:oprettet"`
	Navn        string    `gorm:"column:navn;size:190;not null"`
	Beskrivelse string    `gorm:"column:beskrivelse"`
	Maengde     int64     `gorm:"column:mængde;not null"`
	Minimum     int64     `gorm:"column:min_mængde;not null"`
	KategoriID  int64     `gorm:"column:kategori_id"`
	LokationID  int64     `gorm:"column:lokation_id"`
	EnhedID     int64     `gorm:"column:enhed_id"`
}

func (Beholdning) TableName() string {
	return "beholdning"
}

// Kategori is a product category reference row.
type Kategori struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Navn string `gorm:"column:navn;size:190;not null"`
}

func (Kategori) TableName() string {
	return "kategori"
}

// Lokation is a storage location reference row.
type Lokation struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Navn string `gorm:"column:navn;size:190;not null"`
}

func (Lokation) TableName() string {
	return "lokation"
}

// Enhed is a unit-of-measure reference row. The display column is named
// value in the schema, unlike the other two lookups.
type Enhed struct {
	ID    int64  `gorm:"column:id;primaryKey"`
	Value string `gorm:"column:value;size:190;not null"`
}

func (Enhed) TableName() string {
	return "enhed"
}
