// Package config centralizes the stack configuration: it is read from a
// yaml file and the environment with viper, and exposes typed accessors for
// CouchDB, the blob storage, the advisory locks and the logger.
package config

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ncw/swift/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/lock"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/logger"
)

const (
	// Filename is the default base name of the configuration file.
	Filename = "gobii-stack"
	// EnvPrefix is the prefix of the environment variables overriding the
	// configuration file.
	EnvPrefix = "gobii"
)

// Config contains the configuration values of the stack.
type Config struct {
	CouchDB CouchDB
	Fs      Fs
	Swift   Swift
	Lock    lock.Getter
	Logger  logger.Options
}

// CouchDB contains the configuration values for the CouchDB connection.
type CouchDB struct {
	URL  *url.URL
	Auth *url.Userinfo
}

// Fs contains the configuration for the blob storage. The supported schemes
// of the URL are file:// and mem:// for the afero backend, and swift:// for
// the OpenStack Object Storage backend.
type Fs struct {
	URL *url.URL
}

// Swift contains the configuration values for the swift connection.
type Swift struct {
	AuthURL  string
	Username string
	APIKey   string
	Region   string
	Tenant   string
}

var (
	config *Config
	mu     sync.Mutex

	couchdbClient = &http.Client{
		Timeout: 10 * time.Second,
	}

	swiftConn *swift.Connection
)

// GetConfig returns the configured instance of Config.
func GetConfig() *Config {
	if config == nil {
		panic("config is not initialized")
	}
	return config
}

// CouchURL returns the CouchDB URL.
func CouchURL() *url.URL {
	return GetConfig().CouchDB.URL
}

// CouchClient returns the http client to use when making requests to CouchDB.
func CouchClient() *http.Client {
	return couchdbClient
}

// FsURL returns the blob-storage URL.
func FsURL() *url.URL {
	return GetConfig().Fs.URL
}

// Lock returns the lock getter.
func Lock() lock.Getter {
	return GetConfig().Lock
}

// GetSwiftConnection returns the connection to the swift cluster. It must
// only be called when the fs URL has the swift scheme.
func GetSwiftConnection() *swift.Connection {
	mu.Lock()
	defer mu.Unlock()
	if swiftConn == nil {
		cfg := GetConfig().Swift
		swiftConn = &swift.Connection{
			AuthUrl:  cfg.AuthURL,
			UserName: cfg.Username,
			ApiKey:   cfg.APIKey,
			Region:   cfg.Region,
			Tenant:   cfg.Tenant,
		}
	}
	return swiftConn
}

// Setup reads the configuration file at the given path, or looks up the
// default locations when empty, and initializes the stack configuration.
func Setup(cfgFile string) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	applyDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	} else {
		viper.SetConfigName(Filename)
		viper.AddConfigPath("/etc/gobii")
		viper.AddConfigPath("$HOME/.config/gobii")
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}

	return UseViper(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("couchdb.url", "http://localhost:5984/")
	v.SetDefault("fs.url", "mem://")
	v.SetDefault("log.level", "info")
}

// UseViper sets the configured instance of Config from the given viper. It
// also initializes the logger and the lock getter.
func UseViper(v *viper.Viper) error {
	couchURL, err := url.Parse(v.GetString("couchdb.url"))
	if err != nil {
		return err
	}
	if couchURL.Path == "" {
		couchURL.Path = "/"
	}
	couchAuth := couchURL.User
	couchURL.User = nil

	fsURL, err := url.Parse(v.GetString("fs.url"))
	if err != nil {
		return err
	}

	var lockRedis redis.UniversalClient
	if addr := v.GetString("lock.redis.addr"); addr != "" {
		lockRedis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: v.GetString("lock.redis.password"),
			DB:       v.GetInt("lock.redis.db"),
		})
	}

	logOpts := logger.Options{Level: v.GetString("log.level")}
	if err := logger.Init(logOpts); err != nil {
		return err
	}

	config = &Config{
		CouchDB: CouchDB{
			URL:  couchURL,
			Auth: couchAuth,
		},
		Fs: Fs{URL: fsURL},
		Swift: Swift{
			AuthURL:  v.GetString("swift.auth_url"),
			Username: v.GetString("swift.username"),
			APIKey:   v.GetString("swift.api_key"),
			Region:   v.GetString("swift.region"),
			Tenant:   v.GetString("swift.tenant"),
		},
		Lock:   lock.New(lockRedis),
		Logger: logOpts,
	}
	return nil
}

// UseTestFile configures the stack for tests: an in-memory blob storage, the
// local CouchDB, and in-memory locks.
func UseTestFile() {
	v := viper.New()
	v.Set("couchdb.url", "http://localhost:5984/")
	v.Set("fs.url", "mem://")
	v.Set("log.level", "info")
	if err := UseViper(v); err != nil {
		panic(err)
	}
}
