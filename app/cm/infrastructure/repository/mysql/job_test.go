package mysql

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/chanyoung/copymachine/app/cm/domain/model/job"
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
)

func newMockRepository(t *testing.T) (*jobRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cm_job").WillReturnResult(sqlmock.NewResult(0, 0))
	r, err := newJobRepository(db)
	if err != nil {
		t.Fatal(err)
	}
	return r, mock
}

func TestSaveJob(t *testing.T) {
	r, mock := newMockRepository(t)
	defer r.Close()

	now := time.Now()
	j := &job.Job{
		RunID:       "0f1e",
		Type:        "repair",
		Params:      machine.Params{FaultSet: []uint64{3, 1}, PoolVersion: 2},
		Node:        "node1",
		State:       machine.Running,
		ScheduledAt: now,
	}

	mock.ExpectExec("INSERT INTO cm_job").
		WithArgs("0f1e", "repair", "3,1", uint64(2), "node1", int32(machine.Running), "", now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := r.Save(j); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListJob(t *testing.T) {
	r, mock := newMockRepository(t)
	defer r.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"cmj_run_id", "cmj_type", "cmj_faults", "cmj_pool_version", "cmj_node",
		"cmj_state", "cmj_error", "cmj_scheduled_at", "cmj_finished_at",
	}).
		AddRow("b", "repair", "1,2", 3, "node1", int32(machine.Failed), "device lost", now, now).
		AddRow("a", "repair", "", 1, "node1", int32(machine.Running), "", now, nil)

	mock.ExpectQuery("SELECT (.+) FROM cm_job WHERE cmj_type=\\? ORDER BY cmj_scheduled_at DESC").
		WithArgs("repair").
		WillReturnRows(rows)

	l, err := r.List("repair")
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(l))
	}
	if l[0].State != machine.Failed || l[0].Error != "device lost" || len(l[0].Params.FaultSet) != 2 || l[0].FinishedAt.IsZero() {
		t.Errorf("unexpected job %+v", l[0])
	}
	if l[1].State != machine.Running || !l[1].FinishedAt.IsZero() || len(l[1].Params.FaultSet) != 0 {
		t.Errorf("unexpected job %+v", l[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListEveryType(t *testing.T) {
	r, mock := newMockRepository(t)
	defer r.Close()

	mock.ExpectQuery("SELECT (.+) FROM cm_job\\s+ORDER BY").
		WillReturnRows(sqlmock.NewRows([]string{"cmj_run_id"}))

	if l, err := r.List(""); err != nil || len(l) != 0 {
		t.Fatalf("unexpected list %v, %v", l, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
