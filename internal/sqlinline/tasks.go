package sqlinline

const QInsertTask = `--sql 95f17827-2845-490f-a651-e539bff899b0
insert into tasks (id, caller_id, work_kind, content, content_subtype, content_hash, status, created_at, updated_at)
values ($1::uuid, nullif($2::text, ''), $3::text, $4::text, $5::text, $6::text, 'pending', now(), now())
returning created_at, updated_at;
`

const QSelectTaskByID = `--sql 59a630bf-c4d2-4e9f-81f9-48f2790208a0
select id::text, coalesce(caller_id, ''), work_kind, content, content_subtype, content_hash,
       status, result, coalesce(error, ''), created_at, updated_at
from tasks
where id = $1::uuid
limit 1;
`

const QSelectCompletedTaskByHash = `--sql 796d033a-8bf5-46f5-8c02-e4941d10db04
select id::text
from tasks
where work_kind = $1::text
  and content_hash = $2::text
  and status = 'completed'
order by updated_at desc
limit 1;
`

const QMarkTaskProcessing = `--sql 41b66a3f-9f46-47e6-87a6-e126098b7977
update tasks
set status = 'processing', updated_at = now()
where id = $1::uuid and status = 'pending';
`

// QFinishTask only touches rows that are not yet terminal, so concurrent
// runs cannot overwrite each other's outcome.
const QFinishTask = `--sql d269c904-2f94-4274-9c84-b61278e72484
update tasks
set status = $2::text,
    result = $3::jsonb,
    error = nullif($4::text, ''),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QListCompletedTasks = `--sql c58d1a45-99d8-417f-b9c4-f0121d67d8ae
select id::text, coalesce(caller_id, ''), work_kind, content, content_subtype, content_hash,
       status, result, coalesce(error, ''), created_at, updated_at
from tasks
where status = 'completed'
  and ($1::text = '' or caller_id = $1::text)
order by updated_at desc
limit $2::int;
`

const QClaimPendingTask = `--sql 7633538b-f840-40bf-a03c-08e322d8e261
with next_task as (
    select id
    from tasks
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
)
update tasks
set status = 'processing', updated_at = now()
where id in (select id from next_task)
returning id::text, coalesce(caller_id, ''), work_kind, content, content_subtype, content_hash,
          status, result, coalesce(error, ''), created_at, updated_at;
`
