package members

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var noOpLogger = zap.NewNop()

// ServiceConfig describes the dependencies of the member reconciler.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service reconciles member YAML records into the member and profile tables.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SourceRef identifies the storage object a record was read from.
type SourceRef struct {
	URI         string
	Fingerprint string
}

// ReconcileItem is one record scheduled for reconciliation.
type ReconcileItem struct {
	Kind   Kind
	Record Record
	Source SourceRef
}

// Reconciliation describes the database state after a record was applied.
type Reconciliation struct {
	Kind    Kind
	Source  SourceRef
	Member  MemberRow
	Profile ProfileRow
	Action  SyncAction
}

// Reconcile upserts the member and its profile for one record as a single transaction.
func (s *Service) Reconcile(ctx context.Context, kind Kind, record Record, source SourceRef) (Reconciliation, error) {
	results, err := s.reconcileBatch(ctx, opReconcile, []ReconcileItem{{Kind: kind, Record: record, Source: source}})
	if err != nil {
		return Reconciliation{}, err
	}
	return results[0], nil
}

// ReconcileAll applies every item inside one transaction; any failure rolls back the whole batch.
func (s *Service) ReconcileAll(ctx context.Context, items []ReconcileItem) ([]Reconciliation, error) {
	return s.reconcileBatch(ctx, opReconcileAll, items)
}

func (s *Service) reconcileBatch(ctx context.Context, operation string, items []ReconcileItem) ([]Reconciliation, error) {
	if s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return nil, newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	for _, item := range items {
		if err := checkItem(operation, item); err != nil {
			return nil, err
		}
	}

	results := make([]Reconciliation, 0, len(items))
	if len(items) == 0 {
		return results, nil
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			reconciliation, err := s.reconcileInTransaction(tx, item)
			if err != nil {
				return err
			}
			results = append(results, reconciliation)
		}
		return nil
	})
	if txErr != nil {
		var databaseErr *DatabaseError
		var serviceErr *ServiceError
		if errors.As(txErr, &databaseErr) || errors.As(txErr, &serviceErr) {
			return nil, txErr
		}
		s.logError(operation, "transaction_failed", txErr)
		return nil, newDatabaseError(operation, "transaction_failed", txErr)
	}
	return results, nil
}

func checkItem(operation string, item ReconcileItem) error {
	if !item.Kind.Valid() {
		return newServiceError(operation, reasonInvalidArg, ErrInvalidKind)
	}
	if strings.TrimSpace(item.Source.URI) == "" {
		return newServiceError(operation, reasonInvalidArg, errMissingSourceURI)
	}
	return Validate(item.Kind, item.Record)
}

func (s *Service) reconcileInTransaction(tx *gorm.DB, item ReconcileItem) (Reconciliation, error) {
	member, err := s.UpsertMember(tx, item.Kind, item.Record.Name(), item.Source.URI)
	if err != nil {
		return Reconciliation{}, err
	}
	profile, err := s.UpsertProfile(tx, item.Kind, member.ID, member.UUID, item.Record.ProfileFields(item.Kind))
	if err != nil {
		return Reconciliation{}, err
	}

	action := SyncActionUpdated
	if member.Inserted {
		action = SyncActionInserted
	}
	if err := s.recordAudit(tx, item, member, action); err != nil {
		return Reconciliation{}, err
	}

	s.logger.Info("member reconciled",
		zap.String("kind", item.Kind.String()),
		zap.String("source_uri", item.Source.URI),
		zap.String("member_uuid", member.UUID),
		zap.String("action", string(action)))

	return Reconciliation{
		Kind:    item.Kind,
		Source:  item.Source,
		Member:  member,
		Profile: profile,
		Action:  action,
	}, nil
}

// UpsertMember inserts or refreshes the member row keyed by sourceURI in one
// statement, then reloads it so the stable id and uuid are returned.
func (s *Service) UpsertMember(tx *gorm.DB, kind Kind, name, sourceURI string) (MemberRow, error) {
	if tx == nil {
		return MemberRow{}, newServiceError(opUpsertMember, reasonMissingDB, errMissingDatabase)
	}
	model, err := newMemberModel(kind)
	if err != nil {
		return MemberRow{}, newServiceError(opUpsertMember, reasonInvalidArg, err)
	}
	issuedUUID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUpsertMember, reasonIDFailed, err, zap.String("source_uri", sourceURI))
		return MemberRow{}, newServiceError(opUpsertMember, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	*model.memberColumns() = MemberColumns{
		MemberUUID: issuedUUID,
		MemberName: name,
		YmlFileURI: sourceURI,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: columnYmlFileURI}},
		DoUpdates: clause.AssignmentColumns([]string{columnMemberName, columnUpdatedAt}),
	}).Create(model).Error
	if err != nil {
		s.logError(opUpsertMember, reasonUpsert, err, zap.String("table", model.TableName()), zap.String("source_uri", sourceURI))
		return MemberRow{}, newDatabaseError(opUpsertMember, reasonUpsert, err)
	}

	stored, _ := newMemberModel(kind)
	if err := tx.Where(queryYmlFileURI, sourceURI).Take(stored).Error; err != nil {
		s.logError(opUpsertMember, reasonReload, err, zap.String("table", model.TableName()), zap.String("source_uri", sourceURI))
		return MemberRow{}, newDatabaseError(opUpsertMember, reasonReload, err)
	}

	row := memberRowFrom(*stored.memberColumns())
	row.Inserted = row.UUID == issuedUUID
	return row, nil
}

// UpsertProfile inserts or refreshes the profile keyed by memberUUID. Absent
// optional fields leave stored values untouched on update.
func (s *Service) UpsertProfile(tx *gorm.DB, kind Kind, memberID int64, memberUUID string, fields ProfileFields) (ProfileRow, error) {
	if tx == nil {
		return ProfileRow{}, newServiceError(opUpsertProfile, reasonMissingDB, errMissingDatabase)
	}
	model, err := newProfileModel(kind)
	if err != nil {
		return ProfileRow{}, newServiceError(opUpsertProfile, reasonInvalidArg, err)
	}
	profileUUID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUpsertProfile, reasonIDFailed, err, zap.String("member_uuid", memberUUID))
		return ProfileRow{}, newServiceError(opUpsertProfile, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	*model.profileColumns() = ProfileColumns{
		ProfileUUID: profileUUID,
		MemberID:    memberID,
		MemberUUID:  memberUUID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	model.assign(fields)

	updateColumns := append([]string{"member_id"}, model.updateColumns(fields)...)
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: columnMemberUUID}},
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}).Create(model).Error
	if err != nil {
		s.logError(opUpsertProfile, reasonUpsert, err, zap.String("table", model.TableName()), zap.String("member_uuid", memberUUID))
		return ProfileRow{}, newDatabaseError(opUpsertProfile, reasonUpsert, err)
	}

	stored, _ := newProfileModel(kind)
	if err := tx.Where(queryMemberUUID, memberUUID).Take(stored).Error; err != nil {
		s.logError(opUpsertProfile, reasonReload, err, zap.String("table", model.TableName()), zap.String("member_uuid", memberUUID))
		return ProfileRow{}, newDatabaseError(opUpsertProfile, reasonReload, err)
	}
	return stored.row(), nil
}

func (s *Service) recordAudit(tx *gorm.DB, item ReconcileItem, member MemberRow, action SyncAction) error {
	auditID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRecordAudit, reasonIDFailed, err, zap.String("member_uuid", member.UUID))
		return newServiceError(opRecordAudit, reasonIDFailed, err)
	}

	var snapshot datatypes.JSON
	if encoded, encodeErr := json.Marshal(item.Record); encodeErr == nil {
		snapshot = datatypes.JSON(encoded)
	} else {
		s.logger.Warn("record snapshot not encodable",
			zap.String("source_uri", item.Source.URI),
			zap.Error(encodeErr))
	}

	audit := SyncAudit{
		AuditID:     auditID,
		Kind:        item.Kind,
		MemberUUID:  member.UUID,
		SourceURI:   item.Source.URI,
		Fingerprint: item.Source.Fingerprint,
		Action:      action,
		Snapshot:    snapshot,
		AppliedAt:   s.clock().UTC(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		s.logError(opRecordAudit, reasonInsert, err, zap.String("member_uuid", member.UUID))
		return newDatabaseError(opRecordAudit, reasonInsert, err)
	}
	return nil
}

// GetByURI loads the member backed by sourceURI. It is a read-only lookup and
// is never used to choose between insert and update.
func (s *Service) GetByURI(ctx context.Context, kind Kind, sourceURI string) (MemberRow, error) {
	if s.db == nil {
		return MemberRow{}, newServiceError(opGetByURI, reasonMissingDB, errMissingDatabase)
	}
	model, err := newMemberModel(kind)
	if err != nil {
		return MemberRow{}, newServiceError(opGetByURI, reasonInvalidArg, err)
	}
	err = s.db.WithContext(ctx).Where(queryYmlFileURI, sourceURI).Take(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MemberRow{}, ErrMemberNotFound
	}
	if err != nil {
		s.logError(opGetByURI, reasonQuery, err, zap.String("source_uri", sourceURI))
		return MemberRow{}, newDatabaseError(opGetByURI, reasonQuery, err)
	}
	return memberRowFrom(*model.memberColumns()), nil
}

// Count returns the number of member rows of the given kind.
func (s *Service) Count(ctx context.Context, kind Kind) (int64, error) {
	if s.db == nil {
		return 0, newServiceError(opCount, reasonMissingDB, errMissingDatabase)
	}
	model, err := newMemberModel(kind)
	if err != nil {
		return 0, newServiceError(opCount, reasonInvalidArg, err)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
		s.logError(opCount, reasonQuery, err, zap.String("kind", kind.String()))
		return 0, newDatabaseError(opCount, reasonQuery, err)
	}
	return count, nil
}

// Ping reports whether the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return newServiceError(opPing, reasonMissingDB, errMissingDatabase)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return newDatabaseError(opPing, "handle_unavailable", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return newDatabaseError(opPing, "unreachable", err)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("member service error", attrs...)
}
