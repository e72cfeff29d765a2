package fts

const schema = `
CREATE TABLE IF NOT EXISTS article_docs (
	article_id  TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	author      TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	date        TEXT NOT NULL DEFAULT ''
);

CREATE VIRTUAL TABLE IF NOT EXISTS article_fts USING fts5(
	article_id UNINDEXED,
	title,
	text,
	description,
	author,
	tokenize = 'unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS comment_docs (
	comment_id TEXT PRIMARY KEY,
	article_id TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	date       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_comment_docs_article ON comment_docs(article_id);

CREATE VIRTUAL TABLE IF NOT EXISTS comment_fts USING fts5(
	comment_id UNINDEXED,
	article_id UNINDEXED,
	content,
	author,
	tokenize = 'unicode61 remove_diacritics 2'
);
`
