package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationInstallNotifyTrigger = "2026-05-11_install_beholdning_notify_trigger"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationInstallNotifyTrigger, apply: installBeholdningNotifyTrigger},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// installBeholdningNotifyTrigger wires the beholdning table to the
// beholdning_changes channel. The trigger function emits the change envelope
// the bridge forwards: TG_OP as the kind, the new row for inserts and
// updates, the old row for deletes and updates. NOTIFY payloads are capped
// at 8000 bytes by postgres; rows in this schema stay far below that.
func installBeholdningNotifyTrigger(db *gorm.DB) error {
	const triggerFunction = `
CREATE OR REPLACE FUNCTION notify_beholdning_change() RETURNS trigger AS $$
DECLARE
  payload json;
BEGIN
  payload = json_build_object(
    'type', TG_OP,
    'table', TG_TABLE_NAME,
    'record', CASE WHEN TG_OP IN ('INSERT', 'UPDATE') THEN row_to_json(NEW) END,
    'old_record', CASE WHEN TG_OP IN ('UPDATE', 'DELETE') THEN row_to_json(OLD) END
  );
  PERFORM pg_notify('beholdning_changes', payload::text);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;`

	const trigger = `
DROP TRIGGER IF EXISTS beholdning_notify ON beholdning;
CREATE TRIGGER beholdning_notify
AFTER INSERT OR UPDATE OR DELETE ON beholdning
FOR EACH ROW EXECUTE FUNCTION notify_beholdning_change();`

	if err := db.Exec(triggerFunction).Error; err != nil {
		return err
	}
	return db.Exec(trigger).Error
}
