package postgres

// migrations are compiled into the binary so a freshly deployed daemon can
// bring its own schema up without shipping .sql files alongside it. Entries
// are append-only; never edit a version that has shipped.
type migration struct {
	version string
	sql     string
}

var migrations = []migration{
	{
		version: "0001_ledger_entries",
		sql: `
			CREATE TABLE IF NOT EXISTS ledger_entries (
				id UUID PRIMARY KEY,
				request_id VARCHAR(128) NOT NULL,
				kind VARCHAR(16) NOT NULL,
				token VARCHAR(32) NOT NULL,
				amount NUMERIC(38, 18) NOT NULL,
				usd_amount NUMERIC(20, 2) NOT NULL,
				recipient VARCHAR(128) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL,
				tx_hash VARCHAR(128) NOT NULL DEFAULT '',
				failure_reason TEXT NOT NULL DEFAULT '',
				completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT ledger_entries_request_id_key UNIQUE (request_id)
			);

			CREATE INDEX IF NOT EXISTS idx_ledger_entries_completed_at
				ON ledger_entries (completed_at DESC);

			CREATE INDEX IF NOT EXISTS idx_ledger_entries_kind_completed_at
				ON ledger_entries (kind, completed_at DESC);
		`,
	},
	{
		version: "0002_payment_attempts",
		sql: `
			CREATE TABLE IF NOT EXISTS payment_attempts (
				id UUID PRIMARY KEY,
				request_id VARCHAR(128) NOT NULL,
				attempt INT NOT NULL,
				stage VARCHAR(64) NOT NULL,
				outcome VARCHAR(16) NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				at TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE INDEX IF NOT EXISTS idx_payment_attempts_request_id
				ON payment_attempts (request_id, at);
		`,
	},
	{
		version: "0003_contacts",
		sql: `
			CREATE TABLE IF NOT EXISTS contacts (
				alias VARCHAR(64) PRIMARY KEY,
				name VARCHAR(128) NOT NULL DEFAULT '',
				address VARCHAR(128) NOT NULL,
				token VARCHAR(32) NOT NULL,
				added_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
}
