package sqlinline

const QSelectActiveCredential = `--sql 3f2ac44f-af53-41dd-8cb9-cf0a76083851
select caller_id, platform, endpoint, token, model, active
from credentials
where caller_id = $1::text
  and platform = $2::text
  and active
limit 1;
`

const QUpsertCredential = `--sql 7754f7af-2f3e-4324-81f9-c9b7a674ae1a
with incoming as (
    select
        $1::text as caller_id,
        $2::text as platform,
        $3::text as endpoint,
        $4::text as token,
        $5::text as model,
        $6::boolean as active
)
insert into credentials (caller_id, platform, endpoint, token, model, active, created_at, updated_at)
select caller_id, platform, endpoint, token, model, active, now(), now() from incoming
on conflict (caller_id, platform) do update set
    endpoint = excluded.endpoint,
    token = excluded.token,
    model = excluded.model,
    active = excluded.active,
    updated_at = now();
`

const QListCredentials = `--sql 02b0c476-93ce-4bc8-b696-3c6220907405
select caller_id, platform, endpoint, token, model, active
from credentials
where caller_id = $1::text
order by platform asc;
`
