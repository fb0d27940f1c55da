package config

// EnvPrefix is the envconfig prefix; individual fields pin their full
// variable names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "ALAUDA_DB_DSN"
	EnvDBHost = "ALAUDA_DB_HOST"
	EnvDBUser = "ALAUDA_DB_USER"
	EnvDBName = "ALAUDA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
