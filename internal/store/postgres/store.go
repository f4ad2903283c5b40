// Package postgres persists trigger schedules, trigger batches, vlog
// requests and device registrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/dispatch"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/scheduler"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Store implements the storage interfaces of the scheduler, the dispatch
// manager and the sweeper on top of PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a Store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListEnabledSchedules returns every enabled trigger schedule. Due-ness is
// evaluated by the scheduler; the store does not interpret timezones.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]domain.TriggerSchedule, error) {
	rows, err := s.db.QueryContext(ctx, queryListEnabledSchedules)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TriggerSchedule
	for rows.Next() {
		var sched domain.TriggerSchedule
		var timeoutSec int64

		err := rows.Scan(
			&sched.UserID,
			&sched.TriggerMinute,
			&sched.Timezone,
			&sched.CronExpression,
			&timeoutSec,
			&sched.Enabled,
			&sched.CreatedAt,
			&sched.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		sched.RequestTimeout = time.Duration(timeoutSec) * time.Second
		result = append(result, sched)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertSchedule creates or replaces a user's trigger schedule.
func (s *Store) UpsertSchedule(ctx context.Context, sched domain.TriggerSchedule) error {
	_, err := s.db.ExecContext(ctx, queryUpsertSchedule,
		sched.UserID,
		sched.TriggerMinute,
		sched.Timezone,
		sched.CronExpression,
		int64(sched.RequestTimeout/time.Second),
		sched.Enabled,
	)
	return err
}

// InsertTriggerBatch records a processed minute. The minute column carries a
// unique constraint; a second insert for the same minute returns
// scheduler.ErrDuplicateBatch.
func (s *Store) InsertTriggerBatch(ctx context.Context, minute time.Time, tasks int) error {
	_, err := s.db.ExecContext(ctx, queryInsertTriggerBatch, minute, tasks)
	if err != nil {
		if isUniqueViolation(err) {
			return scheduler.ErrDuplicateBatch
		}
		return err
	}
	return nil
}

// DeleteTriggerBatch removes a recorded minute whose batch never reached
// the dispatcher. Deleting an absent minute is a no-op.
func (s *Store) DeleteTriggerBatch(ctx context.Context, minute time.Time) error {
	_, err := s.db.ExecContext(ctx, queryDeleteTriggerBatch, minute)
	return err
}

// InsertVlogRequest persists a freshly created vlog request.
func (s *Store) InsertVlogRequest(ctx context.Context, req domain.VlogRequest) error {
	_, err := s.db.ExecContext(ctx, queryInsertVlogRequest,
		req.ID,
		req.UserID,
		req.LivestreamID,
		req.RequestedAt,
		req.Deadline,
		string(req.State),
	)
	return err
}

// GetRequestByLivestream returns the most recent request bound to a
// livestream.
func (s *Store) GetRequestByLivestream(ctx context.Context, livestreamID string) (domain.VlogRequest, error) {
	var req domain.VlogRequest
	var state string

	err := s.db.QueryRowContext(ctx, queryGetRequestByLivestream, livestreamID).Scan(
		&req.ID,
		&req.UserID,
		&req.LivestreamID,
		&req.RequestedAt,
		&req.Deadline,
		&state,
		&req.CreatedAt,
	)
	if err != nil {
		return domain.VlogRequest{}, err
	}
	req.State = domain.RequestState(state)
	return req, nil
}

// TransitionRequestState moves a request from one state to another with the
// from-state as an atomic guard in the WHERE clause. PostgreSQL takes the
// row lock before evaluating the guard, so concurrent connect and timeout
// transitions serialize and exactly one wins.
func (s *Store) TransitionRequestState(ctx context.Context, requestID uuid.UUID, from, to domain.RequestState) error {
	result, err := s.db.ExecContext(ctx, queryTransitionRequestState, string(to), requestID, string(from))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Missing row and wrong-state row need different errors.
		var current string
		err := s.db.QueryRowContext(ctx, queryGetRequestState, requestID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		return dispatch.ErrStateTransitionDenied
	}
	return nil
}

// GetPendingRequests returns requests still awaiting a connect, ordered by
// deadline. The sweeper uses this to rebuild timers after a restart.
func (s *Store) GetPendingRequests(ctx context.Context, maxResults int) ([]domain.VlogRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryGetPendingRequests, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.VlogRequest
	for rows.Next() {
		var req domain.VlogRequest
		var state string

		err := rows.Scan(
			&req.ID,
			&req.UserID,
			&req.LivestreamID,
			&req.RequestedAt,
			&req.Deadline,
			&state,
			&req.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		req.State = domain.RequestState(state)
		result = append(result, req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetDeviceRegistrations returns a user's registered push devices.
func (s *Store) GetDeviceRegistrations(ctx context.Context, userID uuid.UUID) ([]domain.DeviceRegistration, error) {
	rows, err := s.db.QueryContext(ctx, queryGetDeviceRegistrations, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeviceRegistration
	for rows.Next() {
		var reg domain.DeviceRegistration
		var platform string

		if err := rows.Scan(&reg.UserID, &platform, &reg.Handle, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		reg.Platform = domain.Platform(platform)
		result = append(result, reg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertDeviceRegistration binds or rebinds a user's push handle for one
// platform.
func (s *Store) UpsertDeviceRegistration(ctx context.Context, reg domain.DeviceRegistration) error {
	_, err := s.db.ExecContext(ctx, queryUpsertDeviceRegistration,
		reg.UserID,
		string(reg.Platform),
		reg.Handle,
	)
	return err
}

// DeleteDeviceRegistration removes a user's push handle for one platform.
func (s *Store) DeleteDeviceRegistration(ctx context.Context, userID uuid.UUID, platform domain.Platform) error {
	result, err := s.db.ExecContext(ctx, queryDeleteDeviceRegistration, userID, string(platform))
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// Compile-time interface assertions
var (
	_ scheduler.Store = (*Store)(nil)
	_ dispatch.Store  = (*Store)(nil)
)
