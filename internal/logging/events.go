package logging

// EventLogger provides structured event logging with fixed per-event schemas.
// Token material must never appear in any field.
type EventLogger struct {
	log func(level Level, msg string, fields ...Field)
}

// NewEventLogger creates a new EventLogger backed by the global logging functions
func NewEventLogger() *EventLogger {
	return &EventLogger{
		log: log,
	}
}

// Command logs the outcome of one delivered command message.
// action: receive|accept|reject
func (e *EventLogger) Command(action, messageID, cmd, tenantID, reason string) {
	level := InfoLevel
	switch action {
	case "reject":
		level = WarnLevel
	case "receive":
		level = DebugLevel
	}

	fields := []Field{
		F("event", "command"),
		F("action", action),
		F("message_id", messageID),
	}
	if cmd != "" {
		fields = append(fields, F("command", cmd))
	}
	if tenantID != "" {
		fields = append(fields, F("tenant_id", tenantID))
	}
	if reason != "" {
		fields = append(fields, F("reason", reason))
	}
	e.log(level, "command_event", fields...)
}

// Publish logs ledger publishing progress for one asset.
// action: schema_found|schema_created|creddef_found|creddef_created|skipped|imported
func (e *EventLogger) Publish(action, name, version, identifier, reason string) {
	level := InfoLevel
	switch action {
	case "schema_found", "creddef_found":
		level = DebugLevel
	case "skipped":
		level = WarnLevel
	}

	fields := []Field{
		F("event", "publish"),
		F("action", action),
		F("name", name),
		F("version", version),
	}
	if identifier != "" {
		fields = append(fields, F("identifier", identifier))
	}
	if reason != "" {
		fields = append(fields, F("reason", reason))
	}
	e.log(level, "publish_event", fields...)
}

// Token logs token lifecycle events. Only token presence is recorded, never
// token contents.
// action: decrypt|refresh|request
func (e *EventLogger) Token(action, tenantID string, success bool, reason string) {
	level := DebugLevel
	if !success {
		level = WarnLevel
	}

	status := "success"
	if !success {
		status = "failed"
	}

	fields := []Field{
		F("event", "token"),
		F("action", action),
		F("status", status),
	}
	if tenantID != "" {
		fields = append(fields, F("tenant_id", tenantID))
	}
	if reason != "" {
		fields = append(fields, F("reason", reason))
	}
	e.log(level, "token_event", fields...)
}

// Session logs session cache activity.
// action: create|hit|evict|expire
func (e *EventLogger) Session(action, tenantID, key string) {
	level := DebugLevel
	if action == "create" {
		level = InfoLevel
	}

	fields := []Field{
		F("event", "session"),
		F("action", action),
		F("tenant_id", tenantID),
	}
	if key != "" {
		fields = append(fields, F("key", key))
	}
	e.log(level, "session_event", fields...)
}

// Transaction logs endorsement transaction tracking.
// action: submitted|completed|refused|cancelled|not_found|timeout
func (e *EventLogger) Transaction(action, txID string) {
	level := InfoLevel
	switch action {
	case "refused", "cancelled", "timeout":
		level = WarnLevel
	case "submitted":
		level = DebugLevel
	}

	e.log(level, "transaction_event",
		F("event", "transaction"),
		F("action", action),
		F("transaction_id", txID),
	)
}

// Infra logs infrastructure events.
// action: connect|disconnect|error|read|ack|reject|write
// component: broker|traction|registry|journal
// status: success|failed
func (e *EventLogger) Infra(action, component, status, details string) {
	level := DebugLevel
	if status == "failed" || action == "error" {
		level = ErrorLevel
	}

	fields := []Field{
		F("event", "infra"),
		F("action", action),
		F("component", component),
		F("status", status),
	}
	if details != "" {
		fields = append(fields, F("details", details))
	}
	e.log(level, "infra_event", fields...)
}
