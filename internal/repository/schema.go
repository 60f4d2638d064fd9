package repository

// Schema is the idempotent DDL for the churn store. Timestamps are UTC TEXT in
// timeLayout so that range predicates compare lexically.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	value TEXT NOT NULL DEFAULT '0',
	churn_date TEXT,
	churn_reason TEXT NOT NULL DEFAULT '',
	extra TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	domains TEXT NOT NULL DEFAULT '[]',
	extra TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	organization_id TEXT,
	created_at TEXT NOT NULL,
	resolved_at TEXT,
	category TEXT NOT NULL DEFAULT '',
	escalated INTEGER NOT NULL DEFAULT 0,
	satisfaction TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	reopen_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	extra TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_tickets_org_created ON tickets(organization_id, created_at);

CREATE TABLE IF NOT EXISTS account_links (
	account_id TEXT PRIMARY KEY,
	organization_id TEXT,
	candidate_organization_id TEXT,
	method TEXT NOT NULL,
	confidence REAL NOT NULL,
	confirmed INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS churn_signatures (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	window_days INTEGER NOT NULL,
	churned_count INTEGER NOT NULL,
	active_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signatures_window_created ON churn_signatures(window_days, created_at);

CREATE TABLE IF NOT EXISTS signature_features (
	signature_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	churned_mean REAL NOT NULL,
	churned_median REAL NOT NULL,
	churned_stddev REAL NOT NULL,
	active_mean REAL NOT NULL,
	active_median REAL NOT NULL,
	active_stddev REAL NOT NULL,
	separation REAL NOT NULL,
	direction TEXT NOT NULL,
	threshold REAL NOT NULL,
	weight REAL NOT NULL,
	PRIMARY KEY (signature_id, name)
);

CREATE TABLE IF NOT EXISTS churn_predictions (
	account_id TEXT NOT NULL,
	signature_id TEXT NOT NULL,
	score REAL NOT NULL,
	risk_level TEXT NOT NULL,
	matched_signals TEXT NOT NULL DEFAULT '[]',
	confidence TEXT NOT NULL,
	scored_at TEXT NOT NULL,
	PRIMARY KEY (account_id, signature_id)
);

CREATE TABLE IF NOT EXISTS risk_scores (
	account_id TEXT PRIMARY KEY,
	volume_score REAL NOT NULL,
	escalation_score REAL NOT NULL,
	sentiment_score REAL NOT NULL,
	velocity_score REAL NOT NULL,
	resolution_score REAL NOT NULL,
	breadth_score REAL NOT NULL,
	recency_score REAL NOT NULL,
	overall REAL NOT NULL,
	risk_level TEXT NOT NULL,
	tickets_30d INTEGER NOT NULL,
	tickets_90d INTEGER NOT NULL,
	escalations_90d INTEGER NOT NULL,
	bad_satisfaction_90d INTEGER NOT NULL,
	open_tickets INTEGER NOT NULL,
	days_since_last_ticket INTEGER NOT NULL,
	risk_factors TEXT NOT NULL DEFAULT '[]',
	scored_at TEXT NOT NULL
);
`
