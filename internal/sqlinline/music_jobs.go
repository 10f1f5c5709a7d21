package sqlinline

const QInsertMusicJob = `--sql fbd413c4-c084-441c-9179-185ab85ffa1b
insert into music_jobs (id, slot, state, request_json, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::jsonb, now(), now())
returning created_at, updated_at;
`

const QMarkMusicJobSubmitted = `--sql 06dc665b-2b26-4a85-a256-0f4ddbdf6b94
update music_jobs
set task_id = $2::text,
    state = 'SUBMITTED',
    updated_at = now()
where id = $1::uuid
  and state in ('QUEUED', 'SUBMITTED');
`

const QRecordMusicJobPoll = `--sql f5eab6d7-f988-408d-878f-21a10bc6ed73
update music_jobs
set state = 'POLLING',
    provider_status = $2::text,
    attempts = $3::int,
    updated_at = now()
where id = $1::uuid
  and state in ('SUBMITTED', 'POLLING');
`

const QCompleteMusicJob = `--sql d9230d4f-9126-42f5-bae8-dc68388648cd
update music_jobs
set state = $2::text,
    error_message = coalesce($3::text, error_message),
    result_json = coalesce($4::jsonb, result_json),
    updated_at = now()
where id = $1::uuid
  and state not in ('SUCCEEDED', 'FAILED', 'TIMED_OUT', 'CANCELLED');
`

const QSelectMusicJob = `--sql 269336b9-a437-4687-8237-e7853f768f21
select id::text, slot, coalesce(task_id, ''), state, provider_status, attempts,
       request_json, result_json, coalesce(error_message, ''), created_at, updated_at
from music_jobs
where id = $1::uuid;
`

const QCancelMusicSlot = `--sql 659b4f2b-596e-40dd-8b13-57f0415418f8
update music_jobs
set state = 'CANCELLED',
    error_message = coalesce(error_message, 'superseded by a newer job'),
    updated_at = now()
where slot = $1::text
  and id <> $2::uuid
  and state in ('QUEUED', 'SUBMITTED', 'POLLING')
  and (created_at, id) < (select created_at, id from music_jobs where id = $2::uuid)
returning id::text;
`

const QClaimStaleMusicJob = `--sql 94560700-e9ec-45d0-aa32-5f2a11030efa
with next_job as (
    select id
    from music_jobs
    where state in ('QUEUED', 'SUBMITTED', 'POLLING')
      and updated_at < now() - make_interval(secs => $1::double precision)
    order by updated_at asc
    for update skip locked
    limit 1
),
claimed as (
    update music_jobs
    set updated_at = now()
    where id in (select id from next_job)
    returning id::text, slot, coalesce(task_id, ''), state, provider_status, attempts,
              request_json, result_json, coalesce(error_message, ''), created_at, updated_at
)
select * from claimed;
`

const QMusicJobStats = `--sql 3c1f7e52-8d4a-4b0e-9a61-2f5d7c8e4b19
select count(*),
       count(*) filter (where state in ('QUEUED', 'SUBMITTED', 'POLLING')),
       count(*) filter (where state = 'SUCCEEDED'),
       count(*) filter (where state = 'FAILED'),
       count(*) filter (where state = 'TIMED_OUT'),
       count(*) filter (where state = 'CANCELLED'),
       count(*) filter (where created_at > now() - interval '24 hours')
from music_jobs;
`
