package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationClampReputationFloor = "2026-05-04_clamp_reputation_floor"
	migrationRepairUserVersions   = "2026-05-11_repair_user_versions"
)

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
		{name: migrationClampReputationFloor, apply: clampReputationFloor},
		{name: migrationRepairUserVersions, apply: repairUserVersions},
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

// clampReputationFloor lifts totals written before the floor was enforced.
func clampReputationFloor(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("reputation < ?", users.InitialReputation).
		Update("reputation", users.InitialReputation).Error
}

func repairUserVersions(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("version < ?", 1).
		Update("version", 1).Error
}
