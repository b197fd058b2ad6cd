package persist

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/mxverify/mxverify/cmd/web/hitlist"
	"github.com/mxverify/mxverify/verifier"
	"github.com/sirupsen/logrus"
)

func New(db *sql.DB, logger logrus.FieldLogger) Persister {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

type Postgres struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Store(ctx context.Context, d hitlist.Domain, r hitlist.Recipient, verdict verifier.Verdict) error {
	stmt, err := p.db.Prepare(`
			INSERT INTO
				hitlist (domain, recipient, verdict)
			VALUES
				($1, $2::bytea, $3)
			ON CONFLICT (domain, recipient) DO UPDATE
			SET
				verdict = EXCLUDED.verdict`)

	if err != nil {
		return err
	}

	defer deferClose(stmt, p.logger)
	_, err = stmt.ExecContext(ctx, string(d), []byte(r), int64(verdict))

	return err
}

func (p *Postgres) Range(ctx context.Context, cb PersistCallbackFn) error {

	if err := p.db.Ping(); err != nil {
		return err
	}

	stmt, err := p.db.Prepare(`
		SELECT
      domain,
      recipient::bytea,
      verdict
		FROM
      hitlist
	`)

	if err != nil {
		return err
	}

	defer deferClose(stmt, p.logger)

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return err
	}

	defer deferClose(rows, p.logger)

	for rows.Next() {
		var row hitListRow

		if err := rows.Scan(&row.Domain, &row.Recipient, &row.Verdict); err != nil {
			p.logger.WithError(err).Warn("Error scanning field")
			continue
		}

		err := cb(hitlist.Domain(row.Domain), hitlist.Recipient(row.Recipient), verifier.Verdict(row.Verdict))
		if err != nil {
			return err
		}
	}

	return rows.Err()
}

type hitListRow struct {
	Domain    string `sql:"domain"`
	Recipient []byte `sql:"recipient"`
	Verdict   int64  `sql:"verdict"`
}

func deferClose(toClose io.Closer, log logrus.FieldLogger) {
	if toClose == nil {
		return
	}

	err := toClose.Close()
	if err != nil {
		if log == nil {
			fmt.Printf("error failed to close handle %s", err)
			return
		}

		log.WithError(err).Error("Failed to close handle")
	}
}
