package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig(t *testing.T) {
	cfg := ClientConfig("example.com")
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "example.com", cfg.ServerName)
	require.NotEmpty(t, cfg.CipherSuites)
	for _, cs := range cfg.CipherSuites {
		assert.Contains(t, aeadSuites, cs)
	}

	// 返回的切片不能与包级变量共享底层数组
	cfg.CipherSuites[0] = 0
	assert.NotEqual(t, uint16(0), aeadSuites[0])
}

func TestRedisConfig(t *testing.T) {
	assert.Equal(t, "redis.internal", RedisConfig("redis.internal:6380").ServerName)
	assert.Equal(t, "redis.internal", RedisConfig("redis.internal").ServerName)
}

func TestHTTPClient(t *testing.T) {
	client := HTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
}
