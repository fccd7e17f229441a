package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PollRepo struct {
	db *DB
}

func NewPollRepo(db *DB) *PollRepo {
	return &PollRepo{db: db}
}

// Upsert creates or replaces the poll keyed by (source, source_poll_id).
// Scalar fields are overwritten and the answer set is deleted and recreated,
// all inside one transaction so readers never observe a poll without its
// answers.
func (r *PollRepo) Upsert(ctx context.Context, p *model.Poll) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	var raw any
	if len(p.Raw) > 0 {
		raw = string(p.Raw)
	}

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO polls (
			id, source, source_poll_id, poll_type, subject, jurisdiction, office,
			start_date, end_date, sample_size, population, pollster, sponsor,
			methodology, url, internal, partisan, hypothetical, raw
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (source, source_poll_id) DO UPDATE SET
			poll_type = EXCLUDED.poll_type,
			subject = EXCLUDED.subject,
			jurisdiction = EXCLUDED.jurisdiction,
			office = EXCLUDED.office,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			sample_size = EXCLUDED.sample_size,
			population = EXCLUDED.population,
			pollster = EXCLUDED.pollster,
			sponsor = EXCLUDED.sponsor,
			methodology = EXCLUDED.methodology,
			url = EXCLUDED.url,
			internal = EXCLUDED.internal,
			partisan = EXCLUDED.partisan,
			hypothetical = EXCLUDED.hypothetical,
			raw = EXCLUDED.raw,
			updated_at = now()
		RETURNING id
	`, p.ID, p.Source, p.SourcePollID, p.PollType, p.Subject, p.Jurisdiction, p.Office,
		p.StartDate, p.EndDate, p.SampleSize, p.Population, p.Pollster, p.Sponsor,
		p.Methodology, p.URL, p.Internal, p.Partisan, p.Hypothetical, raw,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert poll: %w", err)
	}
	p.ID = id

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_answers WHERE poll_id = $1`, id); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}

	if len(p.Answers) > 0 {
		// Single multi-row insert keeps the answer recreate cheap.
		args := make([]any, 0, len(p.Answers)*6)
		placeholders := make([]string, 0, len(p.Answers))
		for i := range p.Answers {
			a := &p.Answers[i]
			if a.ID == uuid.Nil {
				a.ID = uuid.New()
			}
			a.PollID = id
			base := i * 6
			placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6))
			args = append(args, a.ID, a.PollID, a.Position, a.Choice, a.Party, a.Percent)
		}
		query := `INSERT INTO poll_answers (id, poll_id, position, choice, party, percent) VALUES ` +
			strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (r *PollRepo) List(ctx context.Context, filter store.PollFilter) ([]model.Poll, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Subject != nil {
		conds = append(conds, "subject = "+arg(*filter.Subject))
	}
	if filter.PollType != nil {
		conds = append(conds, "poll_type = "+arg(*filter.PollType))
	}
	if filter.PollTypeContains != nil {
		conds = append(conds, "poll_type ILIKE "+arg("%"+*filter.PollTypeContains+"%"))
	}
	if filter.From != nil {
		conds = append(conds, "end_date >= "+arg(*filter.From))
	}
	if filter.Before != nil {
		conds = append(conds, "end_date < "+arg(*filter.Before))
	}

	query := `
		SELECT id, source, source_poll_id, poll_type, subject, jurisdiction, office,
			start_date, end_date, sample_size, population, pollster, sponsor,
			methodology, url, internal, partisan, hypothetical, raw, created_at, updated_at
		FROM polls`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.OrderAsc {
		query += " ORDER BY end_date ASC NULLS LAST, created_at ASC"
	} else {
		query += " ORDER BY end_date DESC NULLS LAST, created_at DESC"
	}
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var polls []model.Poll
	for rows.Next() {
		var (
			p   model.Poll
			raw sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.Source, &p.SourcePollID, &p.PollType, &p.Subject, &p.Jurisdiction, &p.Office,
			&p.StartDate, &p.EndDate, &p.SampleSize, &p.Population, &p.Pollster, &p.Sponsor,
			&p.Methodology, &p.URL, &p.Internal, &p.Partisan, &p.Hypothetical, &raw,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		if raw.Valid {
			p.Raw = []byte(raw.String)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate polls: %w", err)
	}

	if err := r.attachAnswers(ctx, polls); err != nil {
		return nil, err
	}
	return polls, nil
}

func (r *PollRepo) attachAnswers(ctx context.Context, polls []model.Poll) error {
	if len(polls) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(polls))
	index := make(map[uuid.UUID]int, len(polls))
	for i := range polls {
		ids[i] = polls[i].ID
		index[polls[i].ID] = i
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, poll_id, position, choice, party, percent
		FROM poll_answers
		WHERE poll_id = ANY($1)
		ORDER BY poll_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.PollID, &a.Position, &a.Choice, &a.Party, &a.Percent); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[a.PollID]; ok {
			polls[i].Answers = append(polls[i].Answers, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate answers: %w", err)
	}
	return nil
}

func (r *PollRepo) ListSubjects(ctx context.Context, limit int) ([]store.SubjectSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT subject, COUNT(*), array_agg(DISTINCT poll_type), MAX(end_date)
		FROM polls
		WHERE subject IS NOT NULL
		GROUP BY subject
		ORDER BY COUNT(*) DESC, subject ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []store.SubjectSummary
	for rows.Next() {
		var s store.SubjectSummary
		if err := rows.Scan(&s.Subject, &s.Count, pq.Array(&s.PollTypes), &s.LatestEndDate); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}
