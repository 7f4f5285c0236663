package server

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationDefaults(t *testing.T) {
	assert := assert.New(t)

	for _, c := range []*Configuration{nil, new(Configuration)} {
		assert.Equal(DefaultName, c.name())
		assert.Equal(DefaultAddress, c.address())
		assert.Equal(DefaultSecureAddress, c.secureAddress())
		assert.Equal(DefaultAdminAddress, c.adminAddress())
		assert.Equal(DefaultPprofAddress, c.pprofAddress())
		assert.Equal(DefaultMaxConnections, c.maxConnections())
		assert.Equal(DefaultMaxWorkers, c.maxWorkers())
		assert.Equal(DefaultMaxHeaderBytes, c.maxHeaderBytes())
		assert.Equal(DefaultIdleTimeout, c.idleTimeout())
		assert.Equal(DefaultShutdownTimeout, c.shutdownTimeout())
		assert.False(c.secure())
	}
}

func TestConfigurationCustom(t *testing.T) {
	var (
		assert = assert.New(t)
		c      = &Configuration{
			Name:            "custom",
			Address:         ":1234",
			SecureAddress:   ":1443",
			AdminAddress:    ":1235",
			PprofAddress:    ":1236",
			CertificateFile: "server.pem",
			KeyFile:         "server.key",
			MaxConnections:  25,
			MaxWorkers:      10,
			MaxHeaderBytes:  4096,
			IdleTimeout:     12 * time.Second,
			ShutdownTimeout: 2 * time.Second,
		}
	)

	assert.Equal("custom", c.name())
	assert.Equal(":1234", c.address())
	assert.Equal(":1443", c.secureAddress())
	assert.Equal(":1235", c.adminAddress())
	assert.Equal(":1236", c.pprofAddress())
	assert.Equal(25, c.maxConnections())
	assert.Equal(10, c.maxWorkers())
	assert.Equal(4096, c.maxHeaderBytes())
	assert.Equal(12*time.Second, c.idleTimeout())
	assert.Equal(2*time.Second, c.shutdownTimeout())
	assert.True(c.secure())

	// a negative value means unlimited connections
	c.MaxConnections = -1
	assert.Zero(c.maxConnections())
}

func TestUnmarshal(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		configuration = `
{
	"name": "sample",
	"address": ":9090",
	"maxConnections": 100,
	"idleTimeout": "45s",
	"deploy": {
		"directory": "/var/lib/sample/deploy",
		"scanInterval": "2s",
		"quietPeriod": "3s"
	},
	"monitor": {
		"lowResourcesIdleTimeout": "200ms",
		"maxLowResourcesTime": "5s",
		"maxGoroutines": 2000
	},
	"accessLog": {
		"file": "/var/log/sample/access.log",
		"cookies": true
	},
	"rewrites": [
		{"pattern": "^/old/", "replacement": "/new/"}
	],
	"log": {
		"level": "DEBUG"
	}
}
`
	)

	v := viper.New()
	v.SetConfigType("json")
	require.NoError(v.ReadConfig(strings.NewReader(configuration)))

	c, err := Unmarshal(v)
	require.NoError(err)
	require.NotNil(c)

	assert.Equal("sample", c.Name)
	assert.Equal(":9090", c.Address)
	assert.Equal(100, c.MaxConnections)
	assert.Equal(45*time.Second, c.IdleTimeout)
	assert.Equal("/var/lib/sample/deploy", c.Deploy.Directory)
	assert.Equal(2*time.Second, c.Deploy.ScanInterval)
	assert.Equal(3*time.Second, c.Deploy.QuietPeriod)
	assert.Equal(200*time.Millisecond, c.Monitor.LowResourcesIdleTimeout)
	assert.Equal(5*time.Second, c.Monitor.MaxLowResourcesTime)
	assert.Equal(2000, c.Monitor.MaxGoroutines)
	assert.Equal("/var/log/sample/access.log", c.AccessLog.File)
	assert.True(c.AccessLog.Cookies)
	require.Len(c.Rewrites, 1)
	assert.Equal("^/old/", c.Rewrites[0].Pattern)
	require.NotNil(c.Log)
	assert.Equal("DEBUG", c.Log.Level)
	assert.Nil(c.Realm)
}
