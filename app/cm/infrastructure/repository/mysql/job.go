package mysql

import (
	"database/sql"

	"github.com/chanyoung/copymachine/app/cm/domain/model/job"
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/pkg/errors"
)

type jobRepository struct {
	db *sql.DB
}

// NewJobRepository returns a new instance of a mysql job repository.
func NewJobRepository(cfg *config.MySQL) (job.Repository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}

	r, err := newJobRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func newJobRepository(db *sql.DB) (*jobRepository, error) {
	if err := initTables(db); err != nil {
		return nil, err
	}
	return &jobRepository{db: db}, nil
}

func (r *jobRepository) Save(j *job.Job) error {
	var finished sql.NullTime
	if !j.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: j.FinishedAt, Valid: true}
	}

	_, err := r.db.Exec(
		`
		INSERT INTO cm_job (cmj_run_id, cmj_type, cmj_faults, cmj_pool_version, cmj_node, cmj_state, cmj_error, cmj_scheduled_at, cmj_finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE cmj_state=VALUES(cmj_state), cmj_error=VALUES(cmj_error), cmj_finished_at=VALUES(cmj_finished_at)
		`,
		j.RunID, j.Type.String(), job.FormatFaults(j.Params.FaultSet), j.Params.PoolVersion,
		j.Node, int32(j.State), j.Error, j.ScheduledAt, finished,
	)
	if err != nil {
		return classify(err, "failed to save job")
	}
	return nil
}

func (r *jobRepository) List(t machine.Type) ([]*job.Job, error) {
	q := `
		SELECT cmj_run_id, cmj_type, cmj_faults, cmj_pool_version, cmj_node, cmj_state,
			ifnull(cmj_error, ''), cmj_scheduled_at, cmj_finished_at
		FROM cm_job
		`
	args := make([]interface{}, 0, 1)
	if t != "" {
		q += "WHERE cmj_type=? "
		args = append(args, t.String())
	}
	q += "ORDER BY cmj_scheduled_at DESC"

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, classify(err, "failed to list jobs")
	}
	defer rows.Close()

	l := make([]*job.Job, 0)
	for rows.Next() {
		var (
			j        job.Job
			typ      string
			faults   string
			state    int32
			finished sql.NullTime
		)
		if err := rows.Scan(
			&j.RunID, &typ, &faults, &j.Params.PoolVersion, &j.Node, &state,
			&j.Error, &j.ScheduledAt, &finished,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}

		if j.Params.FaultSet, err = job.ParseFaults(faults); err != nil {
			return nil, errors.Wrapf(err, "job %s", j.RunID)
		}
		j.Type = machine.Type(typ)
		j.State = machine.State(state)
		if finished.Valid {
			j.FinishedAt = finished.Time
		}
		l = append(l, &j)
	}
	return l, errors.Wrap(rows.Err(), "failed to list jobs")
}

func (r *jobRepository) Close() error {
	return r.db.Close()
}
