package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS AND OLYMPS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    telegram_id BIGINT,
    handle VARCHAR(32) NOT NULL,
    name VARCHAR(100) NOT NULL,
    surname VARCHAR(100) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT users_handle_key UNIQUE (handle),
    CONSTRAINT users_telegram_id_key UNIQUE (telegram_id),
    CONSTRAINT valid_telegram_id CHECK (telegram_id IS NULL OR telegram_id > 0)
);

CREATE TABLE IF NOT EXISTS olymps (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'tba',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT olymps_name_key UNIQUE (name),
    CONSTRAINT valid_olymp_status CHECK (status IN ('tba', 'registration', 'contest', 'queue', 'results'))
);

-- At most one olymp is not finished.
CREATE UNIQUE INDEX IF NOT EXISTS olymps_one_unfinished ON olymps ((true)) WHERE status <> 'results';
`

const migration001Down = `
DROP TABLE IF EXISTS olymps;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROBLEMS AND BLOCKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS problems (
    id BIGSERIAL PRIMARY KEY,
    olymp_id BIGINT NOT NULL REFERENCES olymps(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,

    CONSTRAINT problems_olymp_name_key UNIQUE (olymp_id, name)
);

CREATE TABLE IF NOT EXISTS problem_blocks (
    id BIGSERIAL PRIMARY KEY,
    olymp_id BIGINT NOT NULL REFERENCES olymps(id) ON DELETE CASCADE,
    problem_1 BIGINT NOT NULL REFERENCES problems(id),
    problem_2 BIGINT NOT NULL REFERENCES problems(id),
    problem_3 BIGINT NOT NULL REFERENCES problems(id),
    block_tier VARCHAR(10),
    block_sequence SMALLINT,
    path TEXT NOT NULL DEFAULT '',

    CONSTRAINT problem_blocks_type_key UNIQUE (olymp_id, block_tier, block_sequence),
    CONSTRAINT distinct_block_problems CHECK (
        problem_1 <> problem_2 AND problem_1 <> problem_3 AND problem_2 <> problem_3
    ),
    CONSTRAINT valid_block_type CHECK (
        (block_tier IS NULL AND block_sequence IS NULL) OR
        (block_tier IN ('junior', 'senior') AND block_sequence BETWEEN 1 AND 3)
    )
);
`

const migration002Down = `
DROP TABLE IF EXISTS problem_blocks;
DROP TABLE IF EXISTS problems;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS participants (
    id BIGSERIAL PRIMARY KEY,
    olymp_id BIGINT NOT NULL REFERENCES olymps(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL REFERENCES users(id),
    grade SMALLINT NOT NULL,
    last_block_number SMALLINT NOT NULL DEFAULT 0,

    CONSTRAINT participants_olymp_user_key UNIQUE (olymp_id, user_id),
    CONSTRAINT valid_grade CHECK (grade BETWEEN 1 AND 11),
    CONSTRAINT valid_last_block CHECK (last_block_number BETWEEN 0 AND 3)
);

CREATE TABLE IF NOT EXISTS examiners (
    id BIGSERIAL PRIMARY KEY,
    olymp_id BIGINT NOT NULL REFERENCES olymps(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL REFERENCES users(id),
    conference_link TEXT NOT NULL DEFAULT '',
    is_busy BOOLEAN NOT NULL DEFAULT TRUE,
    busyness_level INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT examiners_olymp_user_key UNIQUE (olymp_id, user_id),
    CONSTRAINT valid_busyness CHECK (busyness_level >= 0)
);

CREATE TABLE IF NOT EXISTS examiner_problems (
    examiner_id BIGINT NOT NULL REFERENCES examiners(id) ON DELETE CASCADE,
    problem_id BIGINT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
    PRIMARY KEY (examiner_id, problem_id)
);

CREATE INDEX IF NOT EXISTS idx_examiners_free ON examiners(olymp_id) WHERE NOT is_busy;
`

const migration003Down = `
DROP TABLE IF EXISTS examiner_problems;
DROP TABLE IF EXISTS examiners;
DROP TABLE IF EXISTS participants;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: QUEUE
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS queue_entries (
    id BIGSERIAL PRIMARY KEY,
    olymp_id BIGINT NOT NULL REFERENCES olymps(id) ON DELETE CASCADE,
    participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
    problem_id BIGINT NOT NULL REFERENCES problems(id),
    status VARCHAR(20) NOT NULL DEFAULT 'waiting',
    examiner_id BIGINT REFERENCES examiners(id),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_entry_status CHECK (status IN ('waiting', 'discussing', 'success', 'fail', 'canceled')),
    CONSTRAINT discussing_has_examiner CHECK (status <> 'discussing' OR examiner_id IS NOT NULL),
    CONSTRAINT waiting_has_no_examiner CHECK (status <> 'waiting' OR examiner_id IS NULL)
);

-- One active entry per participant, one discussion per examiner.
CREATE UNIQUE INDEX IF NOT EXISTS queue_entries_one_active_per_participant
    ON queue_entries(participant_id) WHERE status IN ('waiting', 'discussing');
CREATE UNIQUE INDEX IF NOT EXISTS queue_entries_one_discussion_per_examiner
    ON queue_entries(examiner_id) WHERE status = 'discussing';

CREATE INDEX IF NOT EXISTS idx_queue_entries_waiting ON queue_entries(olymp_id, id) WHERE status = 'waiting';
CREATE INDEX IF NOT EXISTS idx_queue_entries_participant ON queue_entries(participant_id, id);
`

const migration004Down = `
DROP TABLE IF EXISTS queue_entries;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users_olymps", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_problems", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_members", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_queue", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}
