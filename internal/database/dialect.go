package database

// Dialect hides the SQL that differs between the two supported backends.
// Queries are written once with ? placeholders and run through a
// QueryBuilder for the active dialect.
type Dialect interface {
	// DriverName is the database/sql driver to open.
	DriverName() string

	// Placeholder renders the bind parameter at position (1-based).
	Placeholder(position int) string

	// SupportsLastInsertID reports whether Result.LastInsertId works. When
	// it does not, inserts need ReturningClause.
	SupportsLastInsertID() bool
	ReturningClause(column string) string

	// InitStatements run once per pool, before migrations.
	InitStatements() []string

	// IsDuplicateKeyError detects unique violations, which surface as
	// USERNAME_TAKEN during registration.
	IsDuplicateKeyError(err error) bool

	// Column types used by the schema.
	AutoIncrementPrimaryKey() string
	CaseInsensitiveText() string
}

// DialectType names a backend as it appears in configuration.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect returns the dialect for t. Anything other than postgres gets
// SQLite.
func NewDialect(t DialectType) Dialect {
	if t == DialectPostgres {
		return &PostgresDialect{}
	}
	return &SQLiteDialect{}
}
