package sqlite

const schema = `
-- Documents table
CREATE TABLE IF NOT EXISTS documents (
    document_id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'processing' CHECK(status IN ('processing', 'completed', 'failed')),
    classification TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

-- Refinement runs table (one row per stage run over one document)
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    final_status TEXT NOT NULL DEFAULT 'running',
    selection_reason TEXT NOT NULL DEFAULT '',
    warning TEXT NOT NULL DEFAULT '',
    best_iteration INTEGER NOT NULL DEFAULT -1,
    iterations INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (document_id) REFERENCES documents(document_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_runs_document ON runs(document_id);
CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(final_status);

-- Iterations table (every persisted candidate, validated or not)
CREATE TABLE IF NOT EXISTS iterations (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    candidate TEXT NOT NULL,
    report TEXT,
    composite_score REAL,
    gate_status TEXT,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, idx),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_iterations_run ON iterations(run_id);

-- Best iterations table (the selected artifact per run)
CREATE TABLE IF NOT EXISTS best_iterations (
    run_id TEXT PRIMARY KEY,
    idx INTEGER NOT NULL,
    candidate TEXT NOT NULL,
    report TEXT,
    created_at DATETIME NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`
