package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/poyrazK/batchdns/internal/core/domain"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func zoneRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "admin_group_id", "shared", "is_test",
		"status", "backend_id", "connection", "transfer_connection", "acl", "allow_dotted_hosts",
		"allow_dotted_limit", "recurrence_schedule", "created_at", "updated_at"})
}

func TestGetZone(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	aclJSON := []byte(`[{"group_id":"devs","access_level":"Write","record_types":["A"]}]`)

	mock.ExpectQuery(`FROM zones WHERE id = \$1`).
		WithArgs("z1").
		WillReturnRows(zoneRows().AddRow("z1", "ok.", "x@ok", "admins", true, false,
			"Active", nil, nil, nil, aclJSON, false, 0, nil, now, now))

	zone, err := repo.GetZone(context.Background(), "z1")
	if err != nil {
		t.Fatalf("GetZone failed: %v", err)
	}
	if zone.Name != "ok." || !zone.Shared {
		t.Errorf("got %+v", zone)
	}
	if len(zone.ACL) != 1 || *zone.ACL[0].GroupID != "devs" {
		t.Errorf("acl payload should unmarshal, got %+v", zone.ACL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetZoneNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM zones WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(zoneRows())

	zone, err := repo.GetZone(context.Background(), "missing")
	if err != nil {
		t.Fatalf("missing zone should not error: %v", err)
	}
	if zone != nil {
		t.Errorf("got %+v, want nil", zone)
	}
}

func TestGetZoneByNameCaseInsensitive(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	mock.ExpectQuery(`FROM zones WHERE LOWER\(name\) = LOWER\(\$1\)`).
		WithArgs("OK.").
		WillReturnRows(zoneRows().AddRow("z1", "ok.", "x@ok", "admins", false, false,
			"Active", nil, nil, nil, nil, false, 0, nil, now, now))

	zone, err := repo.GetZoneByName(context.Background(), "OK.")
	if err != nil {
		t.Fatalf("GetZoneByName failed: %v", err)
	}
	if zone == nil || zone.ID != "z1" {
		t.Errorf("got %+v", zone)
	}
}

func TestFindRecordSet(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	recordsJSON := []byte(`[{"address":"192.0.2.1"},{"address":"192.0.2.2"}]`)
	changeJSON := []byte(`{"status":"PendingReview","requested_owner_group_id":"g2"}`)

	mock.ExpectQuery(`FROM record_sets\s+WHERE zone_id = \$1 AND LOWER\(name\) = LOWER\(\$2\) AND type = \$3`).
		WithArgs("z1", "WWW", "A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "zone_id", "name", "type", "ttl", "records",
			"owner_group_id", "group_change", "created_at", "updated_at"}).
			AddRow("rs1", "z1", "www", "A", 300, recordsJSON, "g1", changeJSON, now, now))

	rs, err := repo.FindRecordSet(context.Background(), "z1", "WWW", domain.TypeA)
	if err != nil {
		t.Fatalf("FindRecordSet failed: %v", err)
	}
	if len(rs.Records) != 2 || rs.Records[1].Address != "192.0.2.2" {
		t.Errorf("records payload should unmarshal, got %+v", rs.Records)
	}
	if rs.RecordSetGroupChange == nil || rs.RecordSetGroupChange.RequestedOwnerGroupID != "g2" {
		t.Errorf("group change payload should unmarshal, got %+v", rs.RecordSetGroupChange)
	}
}

func TestTransitionStatusCAS(t *testing.T) {
	repo, mock := newMockRepo(t)

	t.Run("wins the swap", func(t *testing.T) {
		mock.ExpectExec(`UPDATE batch_changes SET status = \$1 WHERE id = \$2 AND status = \$3`).
			WithArgs("Processing", "b1", "Pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		if err := repo.TransitionStatus(context.Background(), "b1", domain.BatchPending, domain.BatchProcessing); err != nil {
			t.Fatalf("transition failed: %v", err)
		}
	})

	t.Run("loses the swap", func(t *testing.T) {
		mock.ExpectExec(`UPDATE batch_changes SET status = \$1 WHERE id = \$2 AND status = \$3`).
			WithArgs("Processing", "b1", "Pending").
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.TransitionStatus(context.Background(), "b1", domain.BatchPending, domain.BatchProcessing)
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("got %v, want ErrInvalidState", err)
		}
	})
}

func TestSetApprovalGuard(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE batch_changes SET approval_status = \$1`).
		WithArgs("ManuallyApproved", "u3", "lgtm", sqlmock.AnyArg(), "b1", "PendingReview").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetApproval(context.Background(), "b1", domain.ApprovalManuallyApproved, "u3", "lgtm")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("approving a non-pending batch: got %v, want ErrInvalidState", err)
	}
}

func TestCreateBatchTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	ttl := 300
	batch := &domain.BatchChange{
		ID: "b1", UserID: "u1", UserName: "alice",
		ApprovalStatus: domain.ApprovalAuto, Status: domain.BatchPending, CreatedAt: time.Now(),
		Changes: []domain.SingleChange{
			{ID: "c1", ChangeType: domain.ChangeAdd, InputName: "www.ok.", Type: domain.TypeA,
				TTL: &ttl, Record: &domain.RecordData{Address: "192.0.2.1"},
				ZoneID: "z1", ZoneName: "ok.", RecordName: "www", Status: domain.ChangePending},
			{ID: "c2", ChangeType: domain.ChangeDeleteRecordSet, InputName: "old.ok.", Type: domain.TypeA,
				ZoneID: "z1", ZoneName: "ok.", RecordName: "old", Status: domain.ChangePending},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO batch_changes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO single_changes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO single_changes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateBatchRollsBackOnChangeFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	batch := &domain.BatchChange{
		ID: "b1", UserID: "u1", UserName: "alice",
		ApprovalStatus: domain.ApprovalAuto, Status: domain.BatchPending, CreatedAt: time.Now(),
		Changes: []domain.SingleChange{
			{ID: "c1", ChangeType: domain.ChangeAdd, InputName: "www.ok.", Type: domain.TypeA, Status: domain.ChangePending},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO batch_changes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO single_changes`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	if err := repo.CreateBatch(context.Background(), batch); err == nil {
		t.Fatal("insert failure should surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetBatchWithChanges(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`FROM batch_changes WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "user_name", "comments",
			"owner_group_id", "scheduled_time", "approval_status", "status", "reviewer_id",
			"review_comment", "reviewed_at", "created_at"}).
			AddRow("b1", "u1", "alice", nil, nil, nil, "AutoApproved", "Complete", nil, nil, nil, now))

	mock.ExpectQuery(`FROM single_changes WHERE batch_id = \$1 ORDER BY seq ASC`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "change_type", "input_name", "record_type",
			"ttl", "record", "zone_id", "zone_name", "record_name", "record_set_id", "status",
			"system_message", "validation_errors"}).
			AddRow("c2", "DeleteRecordSet", "old.ok.", "A", nil, nil, "z1", "ok.", "old", "", "Complete",
				"This record does not exist. No further action is required.", nil).
			AddRow("c1", "Add", "www.ok.", "A", 300, []byte(`{"address":"192.0.2.1"}`), "z1", "ok.",
				"www", "rs1", "Complete", "", nil))

	batch, err := repo.GetBatch(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if len(batch.Changes) != 2 {
		t.Fatalf("got %d changes", len(batch.Changes))
	}
	// The store returns children in seq order, whatever that is.
	if batch.Changes[0].ID != "c2" || batch.Changes[1].ID != "c1" {
		t.Errorf("changes should keep query order: %s, %s", batch.Changes[0].ID, batch.Changes[1].ID)
	}
	if batch.Changes[1].Record == nil || batch.Changes[1].Record.Address != "192.0.2.1" {
		t.Errorf("record payload should unmarshal, got %+v", batch.Changes[1].Record)
	}
}

func TestGetUserAggregatesKeysAndGroups(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT user_name, bool_or\(is_super\), bool_or\(is_support\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_name", "is_super", "is_support"}).
			AddRow("alice", false, true))
	mock.ExpectQuery(`SELECT id FROM groups WHERE member_ids @> to_jsonb\(\$1::text\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("admins").AddRow("devs"))

	user, err := repo.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.UserName != "alice" || !user.IsSupport || user.IsSuper {
		t.Errorf("got %+v", user)
	}
	if len(user.Groups) != 2 {
		t.Errorf("got groups %v", user.Groups)
	}
}

func TestRevokeAPIKeyNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE api_keys SET active = false WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RevokeAPIKey(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
