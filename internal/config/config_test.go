package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcdeck/internal/registry"
	"github.com/loykin/svcdeck/internal/unit"
)

const sample = `
self = "staff-portal"

[server]
listen = ":8795"
  [server.auth]
  enabled = true
  jwt_secret = "s3cret"

[probe]
timeout = "3s"
port_resolver = "socket"

[control]
grace = "500ms"
action_scopes = [["systemctl", "--user"]]
env = ["PYTHONUNBUFFERED=1"]

[[services]]
name = "staff-portal"
kind = "unit"
unit = "staff-portal"
port = 8795
description = "Staff Portal (this app)"

[[services]]
name = "siegengin"
kind = "process"
port = 8791
workdir = "~/tools/siegeNgin/app"
command = "python3 -u server.py"
description = "siegeNgin Proxy"
log_file = "/var/log/siegengin.log"
env = ["PORT=8791"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "svcdeck.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadSample(t *testing.T) {
	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "staff-portal", c.Self)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.True(t, c.Server.Auth.Enabled)
	assert.Equal(t, "admin", c.Server.Auth.AdminRole)
	assert.Equal(t, 3*time.Second, c.Probe.Timeout)
	assert.Equal(t, "socket", c.Probe.PortResolver)
	assert.Equal(t, 15*time.Second, c.Control.Timeout)
	assert.Equal(t, 500*time.Millisecond, c.Control.Grace)
	assert.Equal(t, "/tmp", c.Control.LogDir)
	assert.Equal(t, unit.DefaultQueryScopes(), c.QueryScopes())
	assert.Equal(t, []unit.Scope{{"systemctl", "--user"}}, c.ActionScopes())
	assert.Equal(t, "@every 30s", c.Metrics.Refresh)
	assert.Equal(t, "info", c.Log.Level)

	reg, err := c.Registry()
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())
	d, ok := reg.Lookup("siegengin")
	require.True(t, ok)
	assert.Equal(t, registry.KindProcess, d.Kind)
	assert.Equal(t, "python3 -u server.py", d.Launch.Command)
	assert.NotContains(t, d.Launch.WorkDir, "~")
	assert.Equal(t, "/var/log/siegengin.log", d.LogFile)
	assert.Equal(t, []string{"PORT=8791"}, d.Launch.Env)
	assert.Equal(t, []string{"PYTHONUNBUFFERED=1"}, c.Control.Env)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SVCDECK_SERVER_LISTEN", "127.0.0.1:9999")
	t.Setenv("SVCDECK_PROBE_TIMEOUT", "750ms")
	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", c.Server.Listen)
	assert.Equal(t, 750*time.Millisecond, c.Probe.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"duplicate names": `
[[services]]
name = "a"
kind = "unit"
unit = "a"
[[services]]
name = "a"
kind = "unit"
unit = "b"
`,
		"process without port": `
[[services]]
name = "p"
kind = "process"
command = "run"
`,
		"process without command": `
[[services]]
name = "p"
kind = "process"
port = 80
`,
		"unit with command": `
[[services]]
name = "u"
kind = "unit"
unit = "u"
command = "x"
`,
		"unknown kind": `
[[services]]
name = "x"
kind = "docker"
`,
		"bad port": `
[[services]]
name = "p"
kind = "process"
port = 70000
command = "run"
`,
		"unknown self": `
self = "ghost"
[[services]]
name = "a"
kind = "unit"
unit = "a"
`,
		"bad duration": `
[probe]
timeout = "soon"
`,
		"empty scopes": `
[control]
query_scopes = []
`,
		"unknown resolver": `
[probe]
port_resolver = "lsof"
`,
		"auth without secret": `
[server.auth]
enabled = true
`,
		"bad refresh": `
[metrics]
refresh = "every now and then"
`,
		"bad log level": `
[log]
level = "chatty"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestEmptyConfigIsValid(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	reg, err := c.Registry()
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
}
