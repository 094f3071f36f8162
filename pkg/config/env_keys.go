package config

const (
	EnvPrefix = "TESTBENCH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TESTBENCH_DB_DSN"
	EnvDBHost = "TESTBENCH_DB_HOST"
	EnvDBUser = "TESTBENCH_DB_USER"
	EnvDBName = "TESTBENCH_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
