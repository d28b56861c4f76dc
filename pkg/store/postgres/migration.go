package postgres

// Schema versions applied by the sqlbase migration manager. The layout is
// two tables: one run row per workflow instance and one step row per
// template entry, keyed by (workflow_id, step_index).
var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			start_time TIMESTAMP WITH TIME ZONE NOT NULL,
			end_time TIMESTAMP WITH TIME ZONE,
			params JSONB
		);

		CREATE TABLE IF NOT EXISTS workflow_steps (
			workflow_id TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			step_index INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			step_timestamp TIMESTAMP WITH TIME ZONE,
			duration_ms BIGINT,
			PRIMARY KEY (workflow_id, step_index)
		);

		CREATE INDEX IF NOT EXISTS idx_workflow_steps_workflow_id
			ON workflow_steps(workflow_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_status
			ON workflow_runs(status);
	`,
}
