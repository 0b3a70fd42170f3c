package clickhouse

import (
	"fmt"
	"net/url"
	"time"
)

// ClientOption adjusts client construction.
type ClientOption func(*ClientConfig)

// ClientConfig describes the server address, protocol, pool sizing,
// and per-query limits.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	UseHTTP      bool
	AsyncInsert  bool
	WaitForAsync bool
	MaxExecTime  time.Duration
}

// dsn renders the config as a clickhouse-go connection string.
func (cc *ClientConfig) dsn() string {
	scheme := "clickhouse://"
	if cc.UseHTTP {
		scheme = "clickhouse+http://"
	}

	params := url.Values{}
	if cc.DialTimeout > 0 {
		params.Set("dial_timeout", cc.DialTimeout.String())
	}
	if cc.ReadTimeout > 0 {
		params.Set("read_timeout", cc.ReadTimeout.String())
	}
	// write_timeout stays client-side; some server versions reject it
	// as a setting.
	if cc.MaxExecTime > 0 {
		params.Set("max_execution_time", fmt.Sprintf("%d", int(cc.MaxExecTime.Seconds())))
	}
	if cc.AsyncInsert {
		params.Set("async_insert", "1")
		if cc.WaitForAsync {
			params.Set("wait_for_async_insert", "1")
		}
	}

	base := fmt.Sprintf("%s%s:%s@%s:%d/%s",
		scheme, cc.User, cc.Password, cc.Host, cc.Port, cc.Database)
	if q := params.Encode(); q != "" {
		base += "?" + q
	}
	return base
}

// WithAddress sets the server host and port.
func WithAddress(host string, port int) ClientOption {
	return func(cc *ClientConfig) {
		cc.Host = host
		cc.Port = port
	}
}

// WithDatabase sets the database name.
func WithDatabase(database string) ClientOption {
	return func(cc *ClientConfig) { cc.Database = database }
}

// WithCredentials sets the login pair.
func WithCredentials(user, password string) ClientOption {
	return func(cc *ClientConfig) {
		cc.User = user
		cc.Password = password
	}
}

// WithPool sizes the connection pool. A non-positive lifetime keeps
// the default.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(cc *ClientConfig) {
		cc.MaxOpenConns = maxOpen
		cc.MaxIdleConns = maxIdle
		if lifetime > 0 {
			cc.ConnLifetime = lifetime
		}
	}
}

// WithTimeouts sets dial, read, and write timeouts.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(cc *ClientConfig) {
		cc.DialTimeout = dial
		cc.ReadTimeout = read
		cc.WriteTimeout = write
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(useHTTP bool) ClientOption {
	return func(cc *ClientConfig) { cc.UseHTTP = useHTTP }
}

// WithAsyncInsert enables server-side async inserts and whether
// writes wait for them.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(cc *ClientConfig) {
		cc.AsyncInsert = enabled
		cc.WaitForAsync = wait
	}
}

// WithMaxExecutionTime bounds per-query execution time.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(cc *ClientConfig) { cc.MaxExecTime = d }
}
