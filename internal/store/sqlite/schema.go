package sqlite

// baselineSchema is the v1 schema of a freshly created datastore.
// Later versions are reached through the steps in migrations.go only.
const baselineSchema = `
CREATE TABLE IF NOT EXISTS timesheet (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    time_in INTEGER NOT NULL,
    time_out INTEGER NOT NULL,
    hours REAL NOT NULL,
    project TEXT NOT NULL,
    tool TEXT,
    detail_charge_code TEXT,
    task_description TEXT NOT NULL,
    status TEXT,
    submitted_at TEXT,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(date, time_in, project, task_description)
);

CREATE TABLE IF NOT EXISTS credentials (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    service TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL,
    password TEXT NOT NULL,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    token TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL,
    is_admin INTEGER NOT NULL DEFAULT 0,
    stay_logged_in INTEGER NOT NULL DEFAULT 0,
    created_at TEXT DEFAULT CURRENT_TIMESTAMP,
    expires_at TEXT NOT NULL
);
`

// Timesheet status values.
const (
	StatusSubmitting = "Submitting"
	StatusFailed     = "Failed"
	StatusComplete   = "Complete"
)
