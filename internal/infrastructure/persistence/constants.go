package persistence

// Tables
const (
	TableDefinitions = "appbuilder_definition"
	TableRoles       = "SITE_ROLE"
	TableScopes      = "SITE_SCOPE"
	TableTenants     = "site_tenant"
)

// SQL column types used for definition fields
const (
	SQLTypeVarchar255 = "VARCHAR(255)"
	SQLTypeText       = "TEXT"
	SQLTypeLongText   = "LONGTEXT"
	SQLTypeInt        = "INT"
	SQLTypeDouble     = "DOUBLE"
	SQLTypeTinyInt1   = "TINYINT(1)"
	SQLTypeDate       = "DATE"
	SQLTypeDateTime   = "DATETIME"
	SQLTypeJSON       = "JSON"
)

// SQL keywords
const (
	KeywordInsertInto  = "INSERT INTO"
	KeywordOnDuplicate = "ON DUPLICATE KEY UPDATE"
	KeywordCreateTable = "CREATE TABLE IF NOT EXISTS"
	KeywordAlterTable  = "ALTER TABLE"
	TableOptions       = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"
	FuncNow            = "NOW()"
)

// System columns present on every object table
const (
	ColumnID         = "id"
	ColumnUUID       = "uuid"
	ColumnCreatedAt  = "created_at"
	ColumnUpdatedAt  = "updated_at"
	ColumnProperties = "properties"
)

// MySQL server error numbers
const (
	ErrNumTableExists  uint16 = 1050
	ErrNumDupFieldName uint16 = 1060
	ErrNumDupKeyName   uint16 = 1061
	ErrNumDupEntry     uint16 = 1062
	ErrNumNoSuchTable  uint16 = 1146
	ErrNumLockWait     uint16 = 1205
	ErrNumDeadlock     uint16 = 1213
	ErrNumDupFKName    uint16 = 1826
	ErrNumFKDupName    uint16 = 1022
)

const maxIdentifierLength = 64
