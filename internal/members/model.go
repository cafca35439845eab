package members

import (
	"time"

	"gorm.io/datatypes"
)

const (
	columnMemberName   = "member_name"
	columnMemberUUID   = "member_uuid"
	columnYmlFileURI   = "yml_file_uri"
	columnUpdatedAt    = "updated_at"
	columnBio          = "bio"
	columnLLMModel     = "llm_model"
	columnCustomPrompt = "custom_prompt"
	queryYmlFileURI    = columnYmlFileURI + " = ?"
	queryMemberUUID    = columnMemberUUID + " = ?"
)

// MemberColumns holds the identity columns shared by both member tables.
// yml_file_uri is the external identity; member_name is not unique.
type MemberColumns struct {
	MemberID   int64     `gorm:"column:member_id;primaryKey;autoIncrement"`
	MemberUUID string    `gorm:"column:member_uuid;size:36;not null;uniqueIndex"`
	MemberName string    `gorm:"column:member_name;size:190;not null;index"`
	YmlFileURI string    `gorm:"column:yml_file_uri;size:1024;not null;uniqueIndex"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

// HumanMember is a row of human_members. Its profile row references
// member_uuid and is removed with it.
type HumanMember struct {
	MemberColumns
	Profile *HumanMemberProfile `gorm:"foreignKey:MemberUUID;references:MemberUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (HumanMember) TableName() string {
	return "human_members"
}

func (m *HumanMember) memberColumns() *MemberColumns {
	return &m.MemberColumns
}

// VirtualMember is a row of virtual_members.
type VirtualMember struct {
	MemberColumns
	Profile *VirtualMemberProfile `gorm:"foreignKey:MemberUUID;references:MemberUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (VirtualMember) TableName() string {
	return "virtual_members"
}

func (m *VirtualMember) memberColumns() *MemberColumns {
	return &m.MemberColumns
}

// ProfileColumns holds the columns shared by both profile tables. The unique
// member_uuid enforces the one-to-one relation with the member row.
type ProfileColumns struct {
	ProfileID   int64     `gorm:"column:profile_id;primaryKey;autoIncrement"`
	ProfileUUID string    `gorm:"column:profile_uuid;size:36;not null;uniqueIndex"`
	MemberID    int64     `gorm:"column:member_id;not null;index"`
	MemberUUID  string    `gorm:"column:member_uuid;size:36;not null;uniqueIndex"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// HumanMemberProfile is a row of human_member_profiles.
type HumanMemberProfile struct {
	ProfileColumns
	Bio *string `gorm:"column:bio;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (HumanMemberProfile) TableName() string {
	return "human_member_profiles"
}

func (p *HumanMemberProfile) profileColumns() *ProfileColumns {
	return &p.ProfileColumns
}

func (p *HumanMemberProfile) assign(fields ProfileFields) {
	p.Bio = fields.Bio
}

func (p *HumanMemberProfile) updateColumns(fields ProfileFields) []string {
	columns := []string{columnUpdatedAt}
	if fields.Bio != nil {
		columns = append(columns, columnBio)
	}
	return columns
}

func (p *HumanMemberProfile) row() ProfileRow {
	row := profileRowFrom(p.ProfileColumns)
	row.Bio = p.Bio
	return row
}

// VirtualMemberProfile is a row of virtual_member_profiles.
type VirtualMemberProfile struct {
	ProfileColumns
	LLMModel     string  `gorm:"column:llm_model;size:190;not null"`
	CustomPrompt *string `gorm:"column:custom_prompt;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (VirtualMemberProfile) TableName() string {
	return "virtual_member_profiles"
}

func (p *VirtualMemberProfile) profileColumns() *ProfileColumns {
	return &p.ProfileColumns
}

func (p *VirtualMemberProfile) assign(fields ProfileFields) {
	if fields.LLMModel != nil {
		p.LLMModel = *fields.LLMModel
	}
	p.CustomPrompt = fields.CustomPrompt
}

func (p *VirtualMemberProfile) updateColumns(fields ProfileFields) []string {
	columns := []string{columnUpdatedAt}
	if fields.LLMModel != nil {
		columns = append(columns, columnLLMModel)
	}
	if fields.CustomPrompt != nil {
		columns = append(columns, columnCustomPrompt)
	}
	return columns
}

func (p *VirtualMemberProfile) row() ProfileRow {
	row := profileRowFrom(p.ProfileColumns)
	row.LLMModel = p.LLMModel
	row.CustomPrompt = p.CustomPrompt
	return row
}

// SyncAction records whether a reconciliation created or refreshed the member.
type SyncAction string

const (
	SyncActionInserted SyncAction = "inserted"
	SyncActionUpdated  SyncAction = "updated"
)

// SyncAudit captures an append-only trail of applied reconciliations.
type SyncAudit struct {
	AuditID     string         `gorm:"column:audit_id;primaryKey;size:36;not null"`
	Kind        Kind           `gorm:"column:kind;size:16;not null;index:idx_member_sync_audits_member,priority:1"`
	MemberUUID  string         `gorm:"column:member_uuid;size:36;not null;index:idx_member_sync_audits_member,priority:2"`
	SourceURI   string         `gorm:"column:source_uri;size:1024;not null"`
	Fingerprint string         `gorm:"column:fingerprint;size:190;not null;default:''"`
	Action      SyncAction     `gorm:"column:action;size:16;not null"`
	Snapshot    datatypes.JSON `gorm:"column:snapshot"`
	AppliedAt   time.Time      `gorm:"column:applied_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (SyncAudit) TableName() string {
	return "member_sync_audits"
}

// Models lists every table owned by this package in migration order.
func Models() []any {
	return []any{
		&HumanMember{},
		&VirtualMember{},
		&HumanMemberProfile{},
		&VirtualMemberProfile{},
		&SyncAudit{},
	}
}

type memberModel interface {
	TableName() string
	memberColumns() *MemberColumns
}

type profileModel interface {
	TableName() string
	profileColumns() *ProfileColumns
	assign(fields ProfileFields)
	updateColumns(fields ProfileFields) []string
	row() ProfileRow
}

func newMemberModel(kind Kind) (memberModel, error) {
	switch kind {
	case KindHuman:
		return &HumanMember{}, nil
	case KindVirtual:
		return &VirtualMember{}, nil
	default:
		return nil, ErrInvalidKind
	}
}

func newProfileModel(kind Kind) (profileModel, error) {
	switch kind {
	case KindHuman:
		return &HumanMemberProfile{}, nil
	case KindVirtual:
		return &VirtualMemberProfile{}, nil
	default:
		return nil, ErrInvalidKind
	}
}

// ProfileFields carries the kind-specific profile attributes. Nil means absent.
type ProfileFields struct {
	Bio          *string
	LLMModel     *string
	CustomPrompt *string
}

// MemberRow is the persisted state of a member after reconciliation.
type MemberRow struct {
	ID        int64
	UUID      string
	Name      string
	SourceURI string
	CreatedAt time.Time
	UpdatedAt time.Time
	Inserted  bool
}

// ProfileRow is the persisted state of a member profile after reconciliation.
type ProfileRow struct {
	ID           int64
	UUID         string
	MemberID     int64
	MemberUUID   string
	Bio          *string
	LLMModel     string
	CustomPrompt *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func memberRowFrom(columns MemberColumns) MemberRow {
	return MemberRow{
		ID:        columns.MemberID,
		UUID:      columns.MemberUUID,
		Name:      columns.MemberName,
		SourceURI: columns.YmlFileURI,
		CreatedAt: columns.CreatedAt,
		UpdatedAt: columns.UpdatedAt,
	}
}

func profileRowFrom(columns ProfileColumns) ProfileRow {
	return ProfileRow{
		ID:         columns.ProfileID,
		UUID:       columns.ProfileUUID,
		MemberID:   columns.MemberID,
		MemberUUID: columns.MemberUUID,
		CreatedAt:  columns.CreatedAt,
		UpdatedAt:  columns.UpdatedAt,
	}
}
