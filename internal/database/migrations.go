package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
)

const migrationDropMemberNameUnique = "2025-09-01_drop_member_name_unique"

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
		{name: migrationDropMemberNameUnique, apply: dropMemberNameUnique},
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

// dropMemberNameUnique removes unique constraints on member_name left by
// earlier schemas; the source file uri is the only member identity.
func dropMemberNameUnique(db *gorm.DB) error {
	migrator := db.Migrator()
	tables := []struct {
		model any
		name  string
	}{
		{model: &members.HumanMember{}, name: members.HumanMember{}.TableName()},
		{model: &members.VirtualMember{}, name: members.VirtualMember{}.TableName()},
	}
	for _, table := range tables {
		if !migrator.HasTable(table.name) {
			continue
		}
		candidates := []string{
			table.name + "_member_name_key",
			db.NamingStrategy.UniqueName(table.name, "member_name"),
		}
		for _, constraint := range candidates {
			if !migrator.HasConstraint(table.model, constraint) {
				continue
			}
			if err := migrator.DropConstraint(table.model, constraint); err != nil {
				return err
			}
		}
	}
	return nil
}
