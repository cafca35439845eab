package database

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
)

type legacyHumanMember struct {
	MemberID   int64     `gorm:"column:member_id;primaryKey;autoIncrement"`
	MemberUUID string    `gorm:"column:member_uuid;size:36;not null;unique"`
	MemberName string    `gorm:"column:member_name;size:190;not null;unique"`
	YmlFileURI string    `gorm:"column:yml_file_uri;size:1024;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (legacyHumanMember) TableName() string {
	return "human_members"
}

func TestMigrateAllowsDuplicateMemberNamesOnLegacySchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")
	database, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&legacyHumanMember{}); err != nil {
		testContext.Fatalf("failed to create legacy schema: %v", err)
	}

	if err := Migrate(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	for index, uri := range []string{"data/human_members/a.yml", "data/samples/human_members/a.yml"} {
		member := members.HumanMember{MemberColumns: members.MemberColumns{
			MemberUUID: []string{"00000000-0000-7000-8000-000000000001", "00000000-0000-7000-8000-000000000002"}[index],
			MemberName: "Same Name",
			YmlFileURI: uri,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}
		if err := database.Create(&member).Error; err != nil {
			testContext.Fatalf("expected duplicate names to be accepted: %v", err)
		}
	}

	duplicateURI := members.HumanMember{MemberColumns: members.MemberColumns{
		MemberUUID: "00000000-0000-7000-8000-000000000003",
		MemberName: "Other Name",
		YmlFileURI: "data/human_members/a.yml",
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
	if err := database.Create(&duplicateURI).Error; err == nil {
		testContext.Fatalf("expected yml_file_uri to stay unique after the table rebuild")
	}

	profile := members.HumanMemberProfile{ProfileColumns: members.ProfileColumns{
		ProfileUUID: "00000000-0000-7000-8000-0000000000a1",
		MemberID:    1,
		MemberUUID:  "00000000-0000-7000-8000-000000000001",
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	if err := database.Create(&profile).Error; err != nil {
		testContext.Fatalf("expected profile for a migrated member to be accepted: %v", err)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationDropMemberNameUnique).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestMigrateIsRepeatable(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "repeat.db"), nil)
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := Migrate(database, nil); err != nil {
			testContext.Fatalf("migration attempt %d failed: %v", attempt, err)
		}
	}
	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected a single ledger entry, got %d", count)
	}

	for _, model := range members.Models() {
		if !database.Migrator().HasTable(model) {
			testContext.Fatalf("expected table for %T", model)
		}
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}, nil); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(Config{Driver: DriverPostgres}, nil); err == nil {
		testContext.Fatalf("expected missing dsn error")
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	database, err := Open(Config{Driver: DriverSQLite, Path: filepath.Join(testContext.TempDir(), "open.db")}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	if !database.Migrator().HasTable(&members.SyncAudit{}) {
		testContext.Fatalf("expected audit table to exist")
	}
}

func TestOpenEnforcesProfileForeignKey(testContext *testing.T) {
	database, err := Open(Config{Driver: DriverSQLite, Path: filepath.Join(testContext.TempDir(), "fk.db")}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	memberUUID := "00000000-0000-7000-8000-000000000010"

	orphan := members.VirtualMemberProfile{
		ProfileColumns: members.ProfileColumns{
			ProfileUUID: "00000000-0000-7000-8000-0000000000b1",
			MemberID:    1,
			MemberUUID:  memberUUID,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		LLMModel: "gpt-4",
	}
	if err := database.Create(&orphan).Error; err == nil {
		testContext.Fatalf("expected profile without a member to be rejected")
	}

	member := members.VirtualMember{MemberColumns: members.MemberColumns{
		MemberUUID: memberUUID,
		MemberName: "Rin",
		YmlFileURI: "data/virtual_members/rin.yml",
		CreatedAt:  now,
		UpdatedAt:  now,
	}}
	if err := database.Create(&member).Error; err != nil {
		testContext.Fatalf("failed to insert member without a profile: %v", err)
	}
	orphan.MemberID = member.MemberID
	if err := database.Create(&orphan).Error; err != nil {
		testContext.Fatalf("failed to insert profile for existing member: %v", err)
	}

	if err := database.Delete(&members.VirtualMember{}, member.MemberID).Error; err != nil {
		testContext.Fatalf("failed to delete member: %v", err)
	}
	var profiles int64
	if err := database.Model(&members.VirtualMemberProfile{}).Count(&profiles).Error; err != nil {
		testContext.Fatalf("failed to count profiles: %v", err)
	}
	if profiles != 0 {
		testContext.Fatalf("expected profile to be removed with its member, got %d", profiles)
	}
}
