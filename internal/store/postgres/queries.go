package postgres

const queryListEnabledSchedules = `
SELECT
    user_id, trigger_minute, timezone, cron_expression,
    request_timeout_seconds, enabled, created_at, updated_at
FROM trigger_schedules
WHERE enabled = true
ORDER BY user_id
`

const queryUpsertSchedule = `
INSERT INTO trigger_schedules
    (user_id, trigger_minute, timezone, cron_expression, request_timeout_seconds, enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
    trigger_minute = EXCLUDED.trigger_minute,
    timezone = EXCLUDED.timezone,
    cron_expression = EXCLUDED.cron_expression,
    request_timeout_seconds = EXCLUDED.request_timeout_seconds,
    enabled = EXCLUDED.enabled,
    updated_at = NOW()
`

const queryInsertTriggerBatch = `
INSERT INTO trigger_batches (minute, fired_at, task_count)
VALUES ($1, NOW(), $2)
`

const queryDeleteTriggerBatch = `
DELETE FROM trigger_batches
WHERE minute = $1
`

const queryInsertVlogRequest = `
INSERT INTO vlog_requests
    (id, user_id, livestream_id, requested_at, deadline, state, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
`

const queryGetRequestByLivestream = `
SELECT id, user_id, livestream_id, requested_at, deadline, state, created_at
FROM vlog_requests
WHERE livestream_id = $1
ORDER BY created_at DESC
LIMIT 1
`

const queryTransitionRequestState = `
UPDATE vlog_requests
SET state = $1
WHERE id = $2
  AND state = $3
`

const queryGetRequestState = `
SELECT state FROM vlog_requests WHERE id = $1
`

const queryGetPendingRequests = `
SELECT id, user_id, livestream_id, requested_at, deadline, state, created_at
FROM vlog_requests
WHERE state = 'requested'
ORDER BY deadline ASC
LIMIT $1
`

const queryGetDeviceRegistrations = `
SELECT user_id, platform, handle, updated_at
FROM device_registrations
WHERE user_id = $1
ORDER BY platform
`

const queryUpsertDeviceRegistration = `
INSERT INTO device_registrations (user_id, platform, handle, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, platform) DO UPDATE SET
    handle = EXCLUDED.handle,
    updated_at = NOW()
`

const queryDeleteDeviceRegistration = `
DELETE FROM device_registrations
WHERE user_id = $1 AND platform = $2
`
