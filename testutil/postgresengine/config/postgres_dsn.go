package config

import "os"

// TestDSNEnv names the environment variable holding the test database DSN.
const TestDSNEnv = "TIMELAPSE_TEST_DSN"

// PostgresTestDSN returns the DSN for the test database and whether one is configured.
func PostgresTestDSN() (string, bool) {
	dsn := os.Getenv(TestDSNEnv)

	return dsn, dsn != ""
}
