package sqlinline

const QListAssetsByOwner = `--sql 67ec4ec8-2703-4dc3-8229-bddc584852a8
select id::text, owner_id, object_key, prompt, content_type, created_at
from assets
where owner_id = $1::text
order by created_at asc;
`

const QDeleteAssetsByOwner = `--sql 435fa4cc-8cb8-43c2-9110-293c8b47fa8a
delete from assets
where owner_id = $1::text;
`

const QInsertAsset = `--sql 5cbc54f5-1f8d-4dcf-8d3c-fc7935b46a16
insert into assets (owner_id, object_key, prompt, content_type, created_at)
values ($1::text, $2::text, $3::text, $4::text, now())
returning id::text, created_at;
`
