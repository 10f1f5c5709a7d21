package sqlinline

const QSelectIntegrationToken = `--sql ec38c9c5-225c-40ce-b929-e975389b0001
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QListIntegrationProviders = `--sql 84a2d377-7d24-48e0-821e-340b95c77704
select provider, updated_at
from integration_tokens
order by provider;
`

// QUpsertIntegrationToken replaces the token and merges properties.
const QUpsertIntegrationToken = `--sql 81e8ca92-71b4-4b13-a850-8a7b93caef39
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
