package mysql

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func Test_ConnectionConfig(t *testing.T) {
	cfg := connectionConfig("db.local", 3307, "wfnet", "secret", "workflows", nil)

	parsed, err := mysql.ParseDSN(cfg.FormatDSN())
	require.NoError(t, err)

	require.Equal(t, "wfnet", parsed.User)
	require.Equal(t, "secret", parsed.Passwd)
	require.Equal(t, "tcp", parsed.Net)
	require.Equal(t, "db.local:3307", parsed.Addr)
	require.Equal(t, "workflows", parsed.DBName)
	require.True(t, parsed.ParseTime)
	require.True(t, parsed.InterpolateParams)
	require.False(t, parsed.MultiStatements)
}

func Test_ConnectionConfig_Params(t *testing.T) {
	params := map[string]string{"time_zone": "'+00:00'"}

	cfg := connectionConfig("localhost", 3306, "root", "root", "wfnet", params)
	params["time_zone"] = "changed"

	parsed, err := mysql.ParseDSN(cfg.FormatDSN())
	require.NoError(t, err)
	require.Equal(t, "'+00:00'", parsed.Params["time_zone"])
}

func Test_ConnectionConfig_SchemaCloneKeepsOriginal(t *testing.T) {
	cfg := connectionConfig("localhost", 3306, "root", "root", "wfnet", nil)

	schemaCfg := cfg.Clone()
	schemaCfg.MultiStatements = true

	require.False(t, cfg.MultiStatements)
	require.Contains(t, schemaCfg.FormatDSN(), "multiStatements=true")
}
