package store

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-magnet/internal/db"
	"github.com/sells-group/lead-magnet/internal/model"
)

//go:embed migrations/postgres.sql
var postgresMigration string

// jsonb columns are read back as text so both backends share one scanner.
var pgColumns = strings.NewReplacer(
	"product_categories", "product_categories::text",
	"market_segments", "market_segments::text",
	"raw_prospeo_data", "raw_prospeo_data::text",
)

var (
	pgCompanyColumns = pgColumns.Replace(companyColumns)
	pgPersonColumns  = pgColumns.Replace(personColumns)
)

// PostgresStore implements LeadStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// pgCompanyMatch locates the company row identifying the same company as a
// key, following model.CompanyKey.Same. $1 is the id, $2 the domain key and
// $3 the name key.
const pgCompanyMatch = `person_id = '' AND (
		company_id = $1::text
		OR (($1::text IS NULL OR company_id IS NULL) AND (
			domain_key = $2::text
			OR (($2::text IS NULL OR domain_key IS NULL) AND name_key = $3::text))))
	ORDER BY CASE WHEN company_id = $1::text THEN 0 WHEN domain_key = $2::text THEN 1 ELSE 2 END, created_at
	LIMIT 1`

// GetCompany returns the stored row of the company identified by key, or nil
// when none exists. Rows are matched by id, then domain, then name.
func (s *PostgresStore) GetCompany(ctx context.Context, key model.CompanyKey) (*model.Company, error) {
	k, err := companyKey(key)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company")
	}
	id, domain, name := matchArgs(key)
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM lead_magnet_candidates WHERE `+pgCompanyMatch, id, domain, name)
	c, err := scanCompany(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", k)
	}
	return c, nil
}

// UpsertCompany writes the company identity and origin and clears the
// qualified flag and keyword check until a new verdict is written. The row
// of the same company is reused even when it was stored under a less
// specific key; the stored wholesale verdict and scraped content are kept.
func (s *PostgresStore) UpsertCompany(ctx context.Context, c *model.Company) (string, error) {
	k, err := companyKey(c.Key())
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert company")
	}

	var rowID, storedKey string
	id, domain, name := matchArgs(c.Key())
	err = s.pool.QueryRow(ctx,
		`SELECT id, company_key FROM lead_magnet_candidates WHERE `+pgCompanyMatch, id, domain, name,
	).Scan(&rowID, &storedKey)
	switch {
	case isNoRows(err):
		return s.insertCompany(ctx, k, c)
	case err != nil:
		return "", eris.Wrapf(err, "postgres: find company %s", k)
	}

	if err := s.updateCompany(ctx, rowID, storedKey, preferredKey(storedKey, k), c); err != nil {
		return "", err
	}
	return rowID, nil
}

func (s *PostgresStore) insertCompany(ctx context.Context, k string, c *model.Company) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO lead_magnet_candidates (
			id, company_key, person_id, company_id, company_name, company_description,
			company_domain, company_website, company_industry, company_size, company_location,
			company_linkedin_url, domain_key, name_key, is_qualified, search_criteria, run_id,
			slack_user_id, slack_channel_id, slack_trigger_id, raw_prospeo_data, created_at, updated_at
		) VALUES ($1, $2, '', $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, FALSE, $14, $15, $16, $17, $18, $19, $20, $20)
		ON CONFLICT (company_key) WHERE person_id = '' DO UPDATE SET
			company_id = EXCLUDED.company_id,
			company_name = EXCLUDED.company_name,
			company_description = EXCLUDED.company_description,
			company_domain = EXCLUDED.company_domain,
			company_website = EXCLUDED.company_website,
			company_industry = EXCLUDED.company_industry,
			company_size = EXCLUDED.company_size,
			company_location = EXCLUDED.company_location,
			company_linkedin_url = EXCLUDED.company_linkedin_url,
			domain_key = EXCLUDED.domain_key,
			name_key = EXCLUDED.name_key,
			keyword_check = NULL,
			is_qualified = FALSE,
			qualified_at = NULL,
			search_criteria = EXCLUDED.search_criteria,
			run_id = EXCLUDED.run_id,
			slack_user_id = EXCLUDED.slack_user_id,
			slack_channel_id = EXCLUDED.slack_channel_id,
			slack_trigger_id = EXCLUDED.slack_trigger_id,
			raw_prospeo_data = EXCLUDED.raw_prospeo_data,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		uuid.New().String(), k, nullString(c.ID), c.Name, nullString(c.Description),
		nullString(c.Domain), nullString(c.Website), nullString(c.Industry), nullString(c.Size), nullString(c.Location),
		nullString(c.LinkedInURL), nullString(c.Key().DomainKey()), nullString(c.Key().NameKey()),
		nullString(c.SearchCriteria), nullString(c.Origin.RunID), nullString(c.Origin.SlackUserID),
		nullString(c.Origin.SlackChannelID), nullString(c.Origin.TriggerID), nullRaw(c.Raw), time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert company %s", k)
	}
	return id, nil
}

// updateCompany refreshes an existing company row. When the row moves to a
// more specific key its person rows move with it.
func (s *PostgresStore) updateCompany(ctx context.Context, rowID, oldKey, newKey string, c *model.Company) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin company update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		UPDATE lead_magnet_candidates SET
			company_key = $1,
			company_id = COALESCE($2, company_id),
			company_name = $3,
			company_description = $4,
			company_domain = COALESCE($5, company_domain),
			company_website = COALESCE($6, company_website),
			company_industry = $7,
			company_size = $8,
			company_location = $9,
			company_linkedin_url = $10,
			domain_key = COALESCE($11, domain_key),
			name_key = COALESCE($12, name_key),
			keyword_check = NULL,
			is_qualified = FALSE,
			qualified_at = NULL,
			search_criteria = $13,
			run_id = $14,
			slack_user_id = $15,
			slack_channel_id = $16,
			slack_trigger_id = $17,
			raw_prospeo_data = $18,
			updated_at = $19
		WHERE id = $20`,
		newKey, nullString(c.ID), c.Name, nullString(c.Description),
		nullString(c.Domain), nullString(c.Website), nullString(c.Industry), nullString(c.Size),
		nullString(c.Location), nullString(c.LinkedInURL),
		nullString(c.Key().DomainKey()), nullString(c.Key().NameKey()),
		nullString(c.SearchCriteria), nullString(c.Origin.RunID), nullString(c.Origin.SlackUserID),
		nullString(c.Origin.SlackChannelID), nullString(c.Origin.TriggerID), nullRaw(c.Raw), time.Now().UTC(),
		rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %s", newKey)
	}

	if newKey != oldKey {
		if _, err := tx.Exec(ctx,
			`UPDATE lead_magnet_candidates SET company_key = $1 WHERE company_key = $2 AND person_id <> ''`,
			newKey, oldKey,
		); err != nil {
			return eris.Wrapf(err, "postgres: rekey persons %s", oldKey)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit company update")
}

// storedKey returns the key the company's rows are stored under, or the
// key's own identity string when the company has no row yet.
func (s *PostgresStore) storedKey(ctx context.Context, key model.CompanyKey) (string, error) {
	k, err := companyKey(key)
	if err != nil {
		return "", err
	}
	var stored string
	id, domain, name := matchArgs(key)
	err = s.pool.QueryRow(ctx,
		`SELECT company_key FROM lead_magnet_candidates WHERE `+pgCompanyMatch, id, domain, name,
	).Scan(&stored)
	if isNoRows(err) {
		return k, nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "find company %s", k)
	}
	return stored, nil
}

// UpdateCompanyVerdict writes classification results to a company row.
func (s *PostgresStore) UpdateCompanyVerdict(ctx context.Context, id string, v model.CompanyVerdict) error {
	v = v.Normalize()
	categories, err := encodeList(v.ProductCategories)
	if err != nil {
		return eris.Wrap(err, "postgres: encode categories")
	}
	segments, err := encodeList(v.MarketSegments)
	if err != nil {
		return eris.Wrap(err, "postgres: encode segments")
	}
	now := time.Now().UTC()
	var qualifiedAt any
	if v.IsQualified() {
		qualifiedAt = now
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE lead_magnet_candidates SET
			wholesale_check = $1, wholesale_response = $2, keyword_check = $3, keyword_response = $4,
			product_categories = $5, market_segments = $6, scraped_content = $7, scraped_at = $8,
			is_qualified = $9, qualified_at = $10, openrouter_response = $11, updated_at = $12
		WHERE id = $13 AND person_id = ''`,
		nullBool(v.WholesaleCheck), nullString(v.WholesaleResponse), nullBool(v.KeywordCheck), nullString(v.KeywordResponse),
		categories, segments, nullString(v.ScrapedContent), nullTime(v.ScrapedAt),
		v.IsQualified(), qualifiedAt, nullString(classifierResponse(v)), now,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company verdict %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: company not found: %s", id)
	}
	return nil
}

// ListWholesaleCompanies returns every company whose wholesale check passed.
func (s *PostgresStore) ListWholesaleCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCompanyColumns+` FROM lead_magnet_candidates
		WHERE person_id = '' AND wholesale_check IS TRUE
		ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wholesale companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

// SavePerson inserts or refreshes a person row. An email already stored is
// kept when the incoming person has none.
func (s *PostgresStore) SavePerson(ctx context.Context, p *model.Person) (string, error) {
	if p.ID == "" {
		return "", eris.New("postgres: save person: person has no id")
	}
	k, err := s.storedKey(ctx, p.CompanyKey())
	if err != nil {
		return "", eris.Wrap(err, "postgres: save person")
	}
	now := time.Now().UTC()
	var qualifiedAt any
	if p.IsQualified {
		qualifiedAt = now
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO lead_magnet_candidates (
			id, company_key, person_id, person_name, person_email, person_title, person_linkedin_url,
			email_enriched, company_id, company_name, company_domain, is_qualified, qualified_at,
			openrouter_response, run_id, slack_user_id, slack_channel_id, slack_trigger_id,
			raw_prospeo_data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
		ON CONFLICT (company_key, person_id) WHERE person_id <> '' DO UPDATE SET
			person_name = EXCLUDED.person_name,
			person_email = COALESCE(EXCLUDED.person_email, lead_magnet_candidates.person_email),
			person_title = EXCLUDED.person_title,
			person_linkedin_url = EXCLUDED.person_linkedin_url,
			is_qualified = EXCLUDED.is_qualified,
			qualified_at = EXCLUDED.qualified_at,
			openrouter_response = EXCLUDED.openrouter_response,
			run_id = EXCLUDED.run_id,
			slack_user_id = EXCLUDED.slack_user_id,
			slack_channel_id = EXCLUDED.slack_channel_id,
			slack_trigger_id = EXCLUDED.slack_trigger_id,
			raw_prospeo_data = EXCLUDED.raw_prospeo_data,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		uuid.New().String(), k, p.ID, nullString(p.Name), nullString(p.Email), nullString(p.Title), nullString(p.LinkedInURL),
		p.EmailEnriched, nullString(p.CompanyID), p.CompanyName, nullString(p.CompanyDomain), p.IsQualified, qualifiedAt,
		nullString(p.QualificationResponse), nullString(p.Origin.RunID), nullString(p.Origin.SlackUserID),
		nullString(p.Origin.SlackChannelID), nullString(p.Origin.TriggerID), nullRaw(p.Raw), now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: save person %s", p.ID)
	}
	return id, nil
}

// UpdatePerson records the enrichment outcome for a person row.
func (s *PostgresStore) UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) error {
	now := time.Now().UTC()
	var qualifiedAt any
	if u.IsQualified {
		qualifiedAt = now
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE lead_magnet_candidates SET
			person_email = $1, email_enriched = $2, is_qualified = $3, qualified_at = $4, updated_at = $5
		WHERE id = $6 AND person_id <> ''`,
		nullString(u.Email), u.Email != "", u.IsQualified, qualifiedAt, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update person %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: person not found: %s", id)
	}
	return nil
}

// ListQualifiedPersons returns the qualified persons with an email stored
// for a company.
func (s *PostgresStore) ListQualifiedPersons(ctx context.Context, key model.CompanyKey) ([]model.Person, error) {
	k, err := s.storedKey(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list qualified persons")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgPersonColumns+` FROM lead_magnet_candidates
		WHERE company_key = $1 AND person_id <> '' AND is_qualified AND COALESCE(person_email, '') <> ''
		ORDER BY created_at`, k)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list qualified persons %s", k)
	}
	defer rows.Close()

	var out []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan person")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate persons")
}
