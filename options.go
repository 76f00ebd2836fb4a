package tsuzuri

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds the overrides applied on top of env config.
type resolvedOptions struct {
	port        int
	store       string
	sqlitePath  string
	databaseURL string
	notifyURL   string
	logger      *slog.Logger
	version     string
	classifier  Classifier
}

// WithPort overrides the TCP port from config (TSUZURI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithSQLite selects the embedded SQLite store at path, overriding
// TSUZURI_STORE and TSUZURI_SQLITE_PATH.
func WithSQLite(path string) Option {
	return func(o *resolvedOptions) {
		o.store = "sqlite"
		o.sqlitePath = path
	}
}

// WithDatabaseURL selects the Postgres store, overriding TSUZURI_STORE and
// DATABASE_URL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) {
		o.store = "postgres"
		o.databaseURL = url
	}
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when DATABASE_URL points at a connection pooler: LISTEN needs a
// direct connection.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithClassifier replaces the configured moderation classifier.
// Only the last call wins.
func WithClassifier(c Classifier) Option {
	return func(o *resolvedOptions) { o.classifier = c }
}
