package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT false,
				steps JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				owner VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);

			CREATE TABLE triggers (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				event_type VARCHAR(255) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				conditions JSONB,
				payload_schema JSONB,
				schedule VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_event_type ON triggers(event_type);
			CREATE INDEX idx_triggers_workflow_id ON triggers(workflow_id);
		`,
		2: `
			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				actor_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				output JSONB,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);

			CREATE TABLE execution_logs (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				attempt INTEGER NOT NULL DEFAULT 0,
				message TEXT NOT NULL DEFAULT '',
				data JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id, created_at);
		`,
		3: `
			CREATE TABLE webhook_events (
				id UUID PRIMARY KEY,
				actor_id VARCHAR(255) NOT NULL DEFAULT '',
				event_type VARCHAR(255) NOT NULL,
				entity_id VARCHAR(255) NOT NULL DEFAULT '',
				entity_type VARCHAR(255) NOT NULL DEFAULT '',
				payload JSONB,
				received_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_webhook_events_event_type ON webhook_events(event_type);
		`,
	}
}
