package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/poyrazK/batchdns/internal/core/domain"
)

// PostgresRepository implements the catalog, batch, group, auth and audit
// ports over PostgreSQL. Structured payloads (ACLs, connections, record data,
// validation errors) live in jsonb columns.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// --- zones ---

const zoneColumns = `id, name, email, admin_group_id, shared, is_test, status, backend_id,
	connection, transfer_connection, acl, allow_dotted_hosts, allow_dotted_limit,
	recurrence_schedule, created_at, updated_at`

func (r *PostgresRepository) GetZone(ctx context.Context, id string) (*domain.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1`
	return r.scanZone(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetZoneByName(ctx context.Context, name string) (*domain.Zone, error) {
	// RFC 1034: domain name comparisons are case-insensitive.
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE LOWER(name) = LOWER($1)`
	return r.scanZone(r.db.QueryRowContext(ctx, query, name))
}

func (r *PostgresRepository) scanZone(row *sql.Row) (*domain.Zone, error) {
	var z domain.Zone
	var connJSON, xferJSON, aclJSON []byte
	errRow := row.Scan(&z.ID, &z.Name, &z.Email, &z.AdminGroupID, &z.Shared, &z.IsTest, &z.Status,
		&z.BackendID, &connJSON, &xferJSON, &aclJSON, &z.AllowDottedHosts, &z.AllowDottedLimit,
		&z.RecurrenceSchedule, &z.CreatedAt, &z.UpdatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if err := unmarshalZonePayloads(&z, connJSON, xferJSON, aclJSON); err != nil {
		return nil, err
	}
	return &z, nil
}

func unmarshalZonePayloads(z *domain.Zone, connJSON, xferJSON, aclJSON []byte) error {
	if len(connJSON) > 0 {
		if err := json.Unmarshal(connJSON, &z.Connection); err != nil {
			return fmt.Errorf("zone %s connection: %w", z.ID, err)
		}
	}
	if len(xferJSON) > 0 {
		if err := json.Unmarshal(xferJSON, &z.TransferConnection); err != nil {
			return fmt.Errorf("zone %s transfer connection: %w", z.ID, err)
		}
	}
	if len(aclJSON) > 0 {
		if err := json.Unmarshal(aclJSON, &z.ACL); err != nil {
			return fmt.Errorf("zone %s acl: %w", z.ID, err)
		}
	}
	return nil
}

func marshalZonePayloads(z *domain.Zone) (connJSON, xferJSON, aclJSON []byte, err error) {
	if z.Connection != nil {
		if connJSON, err = json.Marshal(z.Connection); err != nil {
			return nil, nil, nil, err
		}
	}
	if z.TransferConnection != nil {
		if xferJSON, err = json.Marshal(z.TransferConnection); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(z.ACL) > 0 {
		if aclJSON, err = json.Marshal(z.ACL); err != nil {
			return nil, nil, nil, err
		}
	}
	return connJSON, xferJSON, aclJSON, nil
}

func (r *PostgresRepository) CreateZone(ctx context.Context, zone *domain.Zone) error {
	connJSON, xferJSON, aclJSON, err := marshalZonePayloads(zone)
	if err != nil {
		return err
	}
	query := `INSERT INTO zones (` + zoneColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = r.db.ExecContext(ctx, query, zone.ID, zone.Name, zone.Email, zone.AdminGroupID,
		zone.Shared, zone.IsTest, zone.Status, zone.BackendID, connJSON, xferJSON, aclJSON,
		zone.AllowDottedHosts, zone.AllowDottedLimit, zone.RecurrenceSchedule, zone.CreatedAt, zone.UpdatedAt)
	return err
}

func (r *PostgresRepository) UpdateZone(ctx context.Context, zone *domain.Zone) error {
	connJSON, xferJSON, aclJSON, err := marshalZonePayloads(zone)
	if err != nil {
		return err
	}
	query := `UPDATE zones SET email = $1, admin_group_id = $2, shared = $3, is_test = $4,
			  status = $5, backend_id = $6, connection = $7, transfer_connection = $8, acl = $9,
			  allow_dotted_hosts = $10, allow_dotted_limit = $11, recurrence_schedule = $12,
			  updated_at = $13 WHERE id = $14`
	_, err = r.db.ExecContext(ctx, query, zone.Email, zone.AdminGroupID, zone.Shared, zone.IsTest,
		zone.Status, zone.BackendID, connJSON, xferJSON, aclJSON,
		zone.AllowDottedHosts, zone.AllowDottedLimit, zone.RecurrenceSchedule, zone.UpdatedAt, zone.ID)
	return err
}

func (r *PostgresRepository) ListZones(ctx context.Context) ([]domain.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones ORDER BY name`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var zones []domain.Zone
	for rows.Next() {
		var z domain.Zone
		var connJSON, xferJSON, aclJSON []byte
		if errScan := rows.Scan(&z.ID, &z.Name, &z.Email, &z.AdminGroupID, &z.Shared, &z.IsTest,
			&z.Status, &z.BackendID, &connJSON, &xferJSON, &aclJSON, &z.AllowDottedHosts,
			&z.AllowDottedLimit, &z.RecurrenceSchedule, &z.CreatedAt, &z.UpdatedAt); errScan != nil {
			return nil, errScan
		}
		if err := unmarshalZonePayloads(&z, connJSON, xferJSON, aclJSON); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// --- record sets ---

const recordSetColumns = `id, zone_id, name, type, ttl, records, owner_group_id, group_change, created_at, updated_at`

func (r *PostgresRepository) GetRecordSet(ctx context.Context, zoneID, id string) (*domain.RecordSet, error) {
	query := `SELECT ` + recordSetColumns + ` FROM record_sets WHERE zone_id = $1 AND id = $2`
	return r.scanRecordSet(r.db.QueryRowContext(ctx, query, zoneID, id))
}

func (r *PostgresRepository) FindRecordSet(ctx context.Context, zoneID, name string, t domain.RecordType) (*domain.RecordSet, error) {
	query := `SELECT ` + recordSetColumns + ` FROM record_sets
			  WHERE zone_id = $1 AND LOWER(name) = LOWER($2) AND type = $3`
	return r.scanRecordSet(r.db.QueryRowContext(ctx, query, zoneID, name, string(t)))
}

func (r *PostgresRepository) scanRecordSet(row *sql.Row) (*domain.RecordSet, error) {
	var rs domain.RecordSet
	var recordsJSON, changeJSON []byte
	errRow := row.Scan(&rs.ID, &rs.ZoneID, &rs.Name, &rs.Type, &rs.TTL, &recordsJSON,
		&rs.OwnerGroupID, &changeJSON, &rs.CreatedAt, &rs.UpdatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if err := unmarshalRecordSetPayloads(&rs, recordsJSON, changeJSON); err != nil {
		return nil, err
	}
	return &rs, nil
}

func unmarshalRecordSetPayloads(rs *domain.RecordSet, recordsJSON, changeJSON []byte) error {
	if len(recordsJSON) > 0 {
		if err := json.Unmarshal(recordsJSON, &rs.Records); err != nil {
			return fmt.Errorf("record set %s records: %w", rs.ID, err)
		}
	}
	if len(changeJSON) > 0 {
		if err := json.Unmarshal(changeJSON, &rs.RecordSetGroupChange); err != nil {
			return fmt.Errorf("record set %s group change: %w", rs.ID, err)
		}
	}
	return nil
}

func (r *PostgresRepository) FindRecordSetsByName(ctx context.Context, zoneID, name string) ([]domain.RecordSet, error) {
	query := `SELECT ` + recordSetColumns + ` FROM record_sets
			  WHERE zone_id = $1 AND LOWER(name) = LOWER($2)`
	return r.queryRecordSets(ctx, query, zoneID, name)
}

func (r *PostgresRepository) ListRecordSets(ctx context.Context, zoneID string) ([]domain.RecordSet, error) {
	query := `SELECT ` + recordSetColumns + ` FROM record_sets WHERE zone_id = $1 ORDER BY name, type`
	return r.queryRecordSets(ctx, query, zoneID)
}

func (r *PostgresRepository) queryRecordSets(ctx context.Context, query string, args ...interface{}) ([]domain.RecordSet, error) {
	rows, errQuery := r.db.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var sets []domain.RecordSet
	for rows.Next() {
		var rs domain.RecordSet
		var recordsJSON, changeJSON []byte
		if errScan := rows.Scan(&rs.ID, &rs.ZoneID, &rs.Name, &rs.Type, &rs.TTL, &recordsJSON,
			&rs.OwnerGroupID, &changeJSON, &rs.CreatedAt, &rs.UpdatedAt); errScan != nil {
			return nil, errScan
		}
		if err := unmarshalRecordSetPayloads(&rs, recordsJSON, changeJSON); err != nil {
			return nil, err
		}
		sets = append(sets, rs)
	}
	return sets, rows.Err()
}

func (r *PostgresRepository) SaveRecordSet(ctx context.Context, rs *domain.RecordSet) error {
	recordsJSON, err := json.Marshal(rs.Records)
	if err != nil {
		return err
	}
	var changeJSON []byte
	if rs.RecordSetGroupChange != nil {
		if changeJSON, err = json.Marshal(rs.RecordSetGroupChange); err != nil {
			return err
		}
	}
	query := `INSERT INTO record_sets (` + recordSetColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (id) DO UPDATE SET
			  ttl = EXCLUDED.ttl, records = EXCLUDED.records,
			  owner_group_id = EXCLUDED.owner_group_id, group_change = EXCLUDED.group_change,
			  updated_at = EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, query, rs.ID, rs.ZoneID, rs.Name, string(rs.Type), rs.TTL,
		recordsJSON, rs.OwnerGroupID, changeJSON, rs.CreatedAt, rs.UpdatedAt)
	return err
}

func (r *PostgresRepository) DeleteRecordSet(ctx context.Context, zoneID, id string) error {
	query := `DELETE FROM record_sets WHERE zone_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, query, zoneID, id)
	return err
}

// --- batches ---

func (r *PostgresRepository) CreateBatch(ctx context.Context, batch *domain.BatchChange) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	batchQuery := `INSERT INTO batch_changes (id, user_id, user_name, comments, owner_group_id,
				   scheduled_time, approval_status, status, reviewer_id, review_comment, reviewed_at, created_at)
				   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, errExec := tx.ExecContext(ctx, batchQuery, batch.ID, batch.UserID, batch.UserName,
		batch.Comments, batch.OwnerGroupID, batch.ScheduledTime, string(batch.ApprovalStatus),
		string(batch.Status), batch.ReviewerID, batch.ReviewComment, batch.ReviewedAt, batch.CreatedAt)
	if errExec != nil {
		return errExec
	}

	changeQuery := `INSERT INTO single_changes (id, batch_id, seq, change_type, input_name, record_type,
					ttl, record, zone_id, zone_name, record_name, record_set_id, status, system_message, validation_errors)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	for i := range batch.Changes {
		c := &batch.Changes[i]
		recordJSON, errsJSON, err := marshalChangePayloads(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, changeQuery, c.ID, batch.ID, i, string(c.ChangeType),
			c.InputName, string(c.Type), c.TTL, recordJSON, c.ZoneID, c.ZoneName, c.RecordName,
			c.RecordSetID, string(c.Status), c.SystemMessage, errsJSON); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func marshalChangePayloads(c *domain.SingleChange) (recordJSON, errsJSON []byte, err error) {
	if c.Record != nil {
		if recordJSON, err = json.Marshal(c.Record); err != nil {
			return nil, nil, err
		}
	}
	if len(c.ValidationErrors) > 0 {
		if errsJSON, err = json.Marshal(c.ValidationErrors); err != nil {
			return nil, nil, err
		}
	}
	return recordJSON, errsJSON, nil
}

func (r *PostgresRepository) GetBatch(ctx context.Context, id string) (*domain.BatchChange, error) {
	query := `SELECT id, user_id, user_name, comments, owner_group_id, scheduled_time,
			  approval_status, status, reviewer_id, review_comment, reviewed_at, created_at
			  FROM batch_changes WHERE id = $1`
	var b domain.BatchChange
	errRow := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.UserID, &b.UserName, &b.Comments,
		&b.OwnerGroupID, &b.ScheduledTime, &b.ApprovalStatus, &b.Status, &b.ReviewerID,
		&b.ReviewComment, &b.ReviewedAt, &b.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}

	changeQuery := `SELECT id, change_type, input_name, record_type, ttl, record, zone_id, zone_name,
					record_name, record_set_id, status, system_message, validation_errors
					FROM single_changes WHERE batch_id = $1 ORDER BY seq ASC`
	rows, errQuery := r.db.QueryContext(ctx, changeQuery, id)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	for rows.Next() {
		var c domain.SingleChange
		var recordJSON, errsJSON []byte
		if errScan := rows.Scan(&c.ID, &c.ChangeType, &c.InputName, &c.Type, &c.TTL, &recordJSON,
			&c.ZoneID, &c.ZoneName, &c.RecordName, &c.RecordSetID, &c.Status, &c.SystemMessage,
			&errsJSON); errScan != nil {
			return nil, errScan
		}
		if len(recordJSON) > 0 {
			if err := json.Unmarshal(recordJSON, &c.Record); err != nil {
				return nil, fmt.Errorf("change %s record: %w", c.ID, err)
			}
		}
		if len(errsJSON) > 0 {
			if err := json.Unmarshal(errsJSON, &c.ValidationErrors); err != nil {
				return nil, fmt.Errorf("change %s validation errors: %w", c.ID, err)
			}
		}
		b.Changes = append(b.Changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresRepository) ListBatches(ctx context.Context, userID string) ([]domain.BatchSummary, error) {
	query := `SELECT b.id, b.user_id, b.user_name, b.comments, b.owner_group_id, b.approval_status,
			  b.status, b.created_at, COUNT(c.id)
			  FROM batch_changes b LEFT JOIN single_changes c ON c.batch_id = b.id
			  WHERE b.user_id = $1
			  GROUP BY b.id ORDER BY b.created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, userID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var summaries []domain.BatchSummary
	for rows.Next() {
		var s domain.BatchSummary
		if errScan := rows.Scan(&s.ID, &s.UserID, &s.UserName, &s.Comments, &s.OwnerGroupID,
			&s.ApprovalStatus, &s.Status, &s.CreatedAt, &s.TotalChanges); errScan != nil {
			return nil, errScan
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// TransitionStatus performs a compare-and-swap on the batch status; losing a
// race returns ErrInvalidState.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id string, expected, next domain.BatchStatus) error {
	query := `UPDATE batch_changes SET status = $1 WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, string(next), id, string(expected))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: batch %s is not %s", domain.ErrInvalidState, id, expected)
	}
	return nil
}

func (r *PostgresRepository) SetApproval(ctx context.Context, id string, decision domain.ApprovalStatus, reviewerID, comment string) error {
	query := `UPDATE batch_changes SET approval_status = $1, reviewer_id = $2, review_comment = $3, reviewed_at = $4
			  WHERE id = $5 AND approval_status = $6`
	res, err := r.db.ExecContext(ctx, query, string(decision), reviewerID, comment, time.Now(),
		id, string(domain.ApprovalPendingReview))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: batch %s is not pending review", domain.ErrInvalidState, id)
	}
	return nil
}

func (r *PostgresRepository) UpdateChange(ctx context.Context, batchID string, change *domain.SingleChange) error {
	recordJSON, errsJSON, err := marshalChangePayloads(change)
	if err != nil {
		return err
	}
	query := `UPDATE single_changes SET zone_id = $1, zone_name = $2, record_name = $3,
			  record_set_id = $4, status = $5, system_message = $6, validation_errors = $7, record = $8
			  WHERE batch_id = $9 AND id = $10`
	_, err = r.db.ExecContext(ctx, query, change.ZoneID, change.ZoneName, change.RecordName,
		change.RecordSetID, string(change.Status), change.SystemMessage, errsJSON, recordJSON,
		batchID, change.ID)
	return err
}

func (r *PostgresRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id FROM batch_changes WHERE status = $1 AND scheduled_time <= $2 ORDER BY scheduled_time ASC`
	rows, errQuery := r.db.QueryContext(ctx, query, string(domain.BatchScheduled), now)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var ids []string
	for rows.Next() {
		var id string
		if errScan := rows.Scan(&id); errScan != nil {
			return nil, errScan
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- groups ---

func (r *PostgresRepository) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	query := `SELECT id, name, email, member_ids, created_at FROM groups WHERE id = $1`
	var g domain.Group
	var membersJSON []byte
	errRow := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Email, &membersJSON, &g.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if len(membersJSON) > 0 {
		if err := json.Unmarshal(membersJSON, &g.MemberIDs); err != nil {
			return nil, fmt.Errorf("group %s members: %w", g.ID, err)
		}
	}
	return &g, nil
}

// --- auth ---

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, user_id, user_name, name, key_hash, key_prefix, role, is_super, is_support, active, created_at, expires_at
			  FROM api_keys WHERE key_hash = $1 AND active = true`
	var k domain.APIKey
	errRow := r.db.QueryRowContext(ctx, query, keyHash).Scan(&k.ID, &k.UserID, &k.UserName, &k.Name,
		&k.KeyHash, &k.KeyPrefix, &k.Role, &k.IsSuper, &k.IsSupport, &k.Active, &k.CreatedAt, &k.ExpiresAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &k, nil
}

// CreateAPIKey stores a new key; only its hash is persisted.
func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, user_id, user_name, name, key_hash, key_prefix, role, is_super, is_support, active, created_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query, key.ID, key.UserID, key.UserName, key.Name, key.KeyHash,
		key.KeyPrefix, string(key.Role), key.IsSuper, key.IsSupport, key.Active, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	query := `SELECT id, user_id, user_name, name, key_hash, key_prefix, role, is_super, is_support, active, created_at, expires_at
			  FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, userID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var keys []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		if errScan := rows.Scan(&k.ID, &k.UserID, &k.UserName, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.Role, &k.IsSuper, &k.IsSupport, &k.Active, &k.CreatedAt, &k.ExpiresAt); errScan != nil {
			return nil, errScan
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates a key without destroying the audit trail.
func (r *PostgresRepository) RevokeAPIKey(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET active = false WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetUser assembles the acting principal: identity flags from api_keys and
// group memberships from the jsonb member lists.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT user_name, bool_or(is_super), bool_or(is_support)
			  FROM api_keys WHERE user_id = $1 GROUP BY user_name`
	var u domain.User
	u.ID = id
	errRow := r.db.QueryRowContext(ctx, query, id).Scan(&u.UserName, &u.IsSuper, &u.IsSupport)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}

	groupQuery := `SELECT id FROM groups WHERE member_ids @> to_jsonb($1::text)`
	rows, errQuery := r.db.QueryContext(ctx, groupQuery, id)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	for rows.Next() {
		var gid string
		if errScan := rows.Scan(&gid); errScan != nil {
			return nil, errScan
		}
		u.Groups = append(u.Groups, gid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &u, nil
}

// --- audit ---

func (r *PostgresRepository) SaveAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	query := `INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Action, entry.ResourceType,
		entry.ResourceID, entry.Details, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) GetAuditLogs(ctx context.Context, userID string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource_type, resource_id, details, created_at
			  FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, userID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if errScan := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &l.CreatedAt); errScan != nil {
			return nil, errScan
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
