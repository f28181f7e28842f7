package sqlinline

// QEnsureSchema creates the tables the service depends on. It runs without
// arguments so pgx sends it over the simple protocol as one batch.
const QEnsureSchema = `--sql 24266a41-e746-4b4b-a44d-24095291ec86
create table if not exists tasks (
    id uuid primary key,
    caller_id text,
    work_kind text not null,
    content text not null,
    content_subtype text not null,
    content_hash text not null,
    status text not null default 'pending'
        check (status in ('pending', 'processing', 'completed', 'failed')),
    result jsonb,
    error text,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists tasks_hash_idx on tasks (work_kind, content_hash) where status = 'completed';
create index if not exists tasks_pending_idx on tasks (created_at) where status = 'pending';

create table if not exists credentials (
    id uuid primary key default gen_random_uuid(),
    caller_id text not null,
    platform text not null,
    endpoint text not null,
    token text not null,
    model text not null default '',
    active boolean not null default true,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    unique (caller_id, platform)
);

create table if not exists assets (
    id uuid primary key default gen_random_uuid(),
    owner_id text not null,
    object_key text not null unique,
    prompt text not null default '',
    content_type text not null default 'application/octet-stream',
    created_at timestamptz not null default now()
);
create index if not exists assets_owner_idx on assets (owner_id);
`
