package database

// Rejected videos are excluded from the unique indexes so a hidden copy
// never blocks a fresh import of the same video.
const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	domain      TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS sources (
	id              BIGSERIAL PRIMARY KEY,
	site_id         BIGINT NOT NULL,
	kind            TEXT NOT NULL CHECK (kind IN ('feed', 'search')),
	name            TEXT NOT NULL,
	origin          TEXT NOT NULL,
	webpage         TEXT,
	status          TEXT NOT NULL DEFAULT 'unapproved',
	auto_approve    BOOLEAN NOT NULL DEFAULT FALSE,
	auto_update     BOOLEAN NOT NULL DEFAULT TRUE,
	etag            TEXT,
	last_updated    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	user_id         TEXT,
	auto_categories BIGINT[] NOT NULL DEFAULT '{}',
	auto_authors    BIGINT[] NOT NULL DEFAULT '{}',
	UNIQUE (site_id, kind, origin)
);

CREATE TABLE IF NOT EXISTS videos (
	id                   BIGSERIAL PRIMARY KEY,
	site_id              BIGINT NOT NULL,
	title                TEXT NOT NULL,
	description          TEXT,
	file_url             TEXT,
	file_url_length      BIGINT,
	file_url_mimetype    TEXT,
	embed_code           TEXT,
	flash_enclosure_url  TEXT,
	guid                 TEXT,
	website_url          TEXT,
	status               TEXT NOT NULL DEFAULT 'unapproved',
	submitted_at         TIMESTAMPTZ NOT NULL,
	approved_at          TIMESTAMPTZ,
	published_at         TIMESTAMPTZ,
	thumbnail_url        TEXT,
	has_thumbnail        BOOLEAN NOT NULL DEFAULT FALSE,
	thumbnail_extension  TEXT,
	source_id            BIGINT REFERENCES sources(id) ON DELETE SET NULL,
	search_id            BIGINT REFERENCES sources(id) ON DELETE SET NULL,
	user_id              TEXT,
	tags                 TEXT[] NOT NULL DEFAULT '{}',
	CHECK (file_url IS NOT NULL OR embed_code IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS videos_site_guid_key
	ON videos (site_id, guid) WHERE guid IS NOT NULL AND status <> 'rejected';
CREATE UNIQUE INDEX IF NOT EXISTS videos_site_website_url_key
	ON videos (site_id, website_url) WHERE website_url IS NOT NULL AND status <> 'rejected';
CREATE UNIQUE INDEX IF NOT EXISTS videos_site_file_url_key
	ON videos (site_id, file_url) WHERE file_url IS NOT NULL AND status <> 'rejected';
CREATE INDEX IF NOT EXISTS videos_source_id_idx ON videos (source_id);
CREATE INDEX IF NOT EXISTS videos_search_id_idx ON videos (search_id);
CREATE INDEX IF NOT EXISTS videos_site_status_idx ON videos (site_id, status, submitted_at DESC);

CREATE TABLE IF NOT EXISTS video_categories (
	video_id    BIGINT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	category_id BIGINT NOT NULL,
	PRIMARY KEY (video_id, category_id)
);

CREATE TABLE IF NOT EXISTS video_authors (
	video_id  BIGINT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	author_id BIGINT NOT NULL,
	PRIMARY KEY (video_id, author_id)
);
`
