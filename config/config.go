package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultConfigPath = "config/dev.toml"
	DefaultEnvPath    = "config/.env"
	ConfigExtension   = ".toml"

	// ConfigPathEnv overrides the config file path.
	ConfigPathEnv = "CONFIG_PATH"
	// KeyStorePasswordEnv overrides the keystore password so it can be kept out of the TOML file.
	KeyStorePasswordEnv = "KEYSTORE_PASSWORD"

	DefaultIssuerDID    = "did:web:localhost"
	DefaultProtocolName = "SSI VC Service"

	DefaultNonceTTL           = 5 * time.Minute
	DefaultNonceSweepInterval = 10 * time.Minute
	DefaultExternalTimeout    = 10 * time.Second
	DefaultLedgerMaxRetries   = 3

	StorageBlobProvider = "storage"
	S3BlobProvider      = "s3"
)

type Environment string

const (
	EnvironmentDev  Environment = "dev"
	EnvironmentTest Environment = "test"
	EnvironmentProd Environment = "prod"
)

type SSIServiceConfig struct {
	conf.Version
	Server   ServerConfig   `toml:"server"`
	Services ServicesConfig `toml:"services"`
}

// ServerConfig represents configurable properties for the HTTP server
type ServerConfig struct {
	Environment        Environment `toml:"env" conf:"default:dev"`
	EnableAllowAllCORS bool        `toml:"enable_allow_all_cors" conf:"default:false"`

	APIHost         string        `toml:"api_host" conf:"default:0.0.0.0:3000"`
	JagerHost       string        `toml:"jager_host" conf:"default:http://jaeger:14268/api/traces"`
	JagerEnabled    bool          `toml:"jager_enabled" conf:"default:false"`
	ReadTimeout     time.Duration `toml:"read_timeout" conf:"default:5s"`
	WriteTimeout    time.Duration `toml:"write_timeout" conf:"default:5s"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" conf:"default:5s"`
	LogLocation     string        `toml:"log_location" conf:"default:log"`
	LogLevel        string        `toml:"log_level" conf:"default:debug"`
}

// ServicesConfig represents configurable properties for the components of the SSI VC Service
type ServicesConfig struct {
	// at present, it is assumed that a single storage provider works for all services
	StorageProvider string          `toml:"storage"`
	StorageOptions  []StorageOption `toml:"storage_option"`

	// EncryptStorage seals every record the services write with the keystore's service key. Keys stay
	// encrypted either way.
	EncryptStorage bool `toml:"encrypt_storage"`

	// Embed all service-specific configs here. The order matters: from which should be instantiated first, to last
	KeyStoreConfig     KeyStoreServiceConfig     `toml:"keystore,omitempty"`
	BlobConfig         BlobServiceConfig         `toml:"blob,omitempty"`
	LedgerConfig       LedgerServiceConfig       `toml:"ledger,omitempty"`
	RequestConfig      RequestServiceConfig      `toml:"request,omitempty"`
	NonceConfig        NonceServiceConfig        `toml:"nonce,omitempty"`
	IssuanceConfig     IssuanceServiceConfig     `toml:"issuance,omitempty"`
	DisclosureConfig   DisclosureServiceConfig   `toml:"disclosure,omitempty"`
	VerificationConfig VerificationServiceConfig `toml:"verification,omitempty"`
}

// StorageOption is a single provider option, e.g. the bolt file path or the redis address.
type StorageOption struct {
	ID     string `toml:"id"`
	Option string `toml:"option"`
}

// BaseServiceConfig represents configurable properties for a specific component of the SSI VC Service
// Can be wrapped and extended for any specific service config
type BaseServiceConfig struct {
	Name string `toml:"name"`
}

type KeyStoreServiceConfig struct {
	*BaseServiceConfig
	// Service key password. Used by a KDF whose key is used by a symmetric cypher for key encryption.
	// The password is salted before usage.
	ServiceKeyPassword string `toml:"password"`

	// The URI for the master key. We use tink for envelope encryption as described in https://github.com/google/tink/blob/9bc2667963e20eb42611b7581e570f0dddf65a2b/docs/KEY-MANAGEMENT.md#key-management-with-tink
	// When left empty, then a random key is generated and used.
	MasterKeyURI string `toml:"master_key_uri"`

	// Path for credentials. Required when MasterKeyURI is set. More info at https://github.com/google/tink/blob/9bc2667963e20eb42611b7581e570f0dddf65a2b/docs/KEY-MANAGEMENT.md#credentials
	KMSCredentialsPath string `toml:"kms_credentials_path"`
}

func (k *KeyStoreServiceConfig) IsEmpty() bool {
	if k == nil {
		return true
	}
	return reflect.DeepEqual(k, &KeyStoreServiceConfig{})
}

func (k *KeyStoreServiceConfig) GetMasterKeyURI() string {
	return k.MasterKeyURI
}

func (k *KeyStoreServiceConfig) GetKMSCredentialsPath() string {
	return k.KMSCredentialsPath
}

func (k *KeyStoreServiceConfig) EncryptionEnabled() bool {
	return k.MasterKeyURI != ""
}

// BlobServiceConfig selects the content-addressed store credentials and their artifacts are written to.
type BlobServiceConfig struct {
	*BaseServiceConfig
	Provider string        `toml:"provider"`
	Timeout  time.Duration `toml:"timeout"`

	// s3 only
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
}

func (b *BlobServiceConfig) IsEmpty() bool {
	if b == nil {
		return true
	}
	return reflect.DeepEqual(b, &BlobServiceConfig{})
}

type LedgerServiceConfig struct {
	*BaseServiceConfig
	Timeout    time.Duration `toml:"timeout"`
	MaxRetries uint64        `toml:"max_retries"`
}

func (l *LedgerServiceConfig) IsEmpty() bool {
	if l == nil {
		return true
	}
	return reflect.DeepEqual(l, &LedgerServiceConfig{})
}

type RequestServiceConfig struct {
	*BaseServiceConfig
}

func (r *RequestServiceConfig) IsEmpty() bool {
	if r == nil {
		return true
	}
	return reflect.DeepEqual(r, &RequestServiceConfig{})
}

type NonceServiceConfig struct {
	*BaseServiceConfig
	// ProtocolName prefixes every challenge message. Changing it invalidates outstanding challenges.
	ProtocolName  string        `toml:"protocol_name"`
	TTL           time.Duration `toml:"ttl"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

func (n *NonceServiceConfig) IsEmpty() bool {
	if n == nil {
		return true
	}
	return reflect.DeepEqual(n, &NonceServiceConfig{})
}

type IssuanceServiceConfig struct {
	*BaseServiceConfig
	IssuerDID string `toml:"issuer_did"`
}

func (i *IssuanceServiceConfig) IsEmpty() bool {
	if i == nil {
		return true
	}
	return reflect.DeepEqual(i, &IssuanceServiceConfig{})
}

type DisclosureServiceConfig struct {
	*BaseServiceConfig
	// PermissiveFields drops unknown disclosed field names instead of rejecting the derivation.
	PermissiveFields bool `toml:"permissive_fields"`
}

func (d *DisclosureServiceConfig) IsEmpty() bool {
	if d == nil {
		return true
	}
	return reflect.DeepEqual(d, &DisclosureServiceConfig{})
}

type VerificationServiceConfig struct {
	*BaseServiceConfig
	// RequireSignature makes a verified signature or proof mandatory for a positive verdict.
	RequireSignature bool `toml:"require_signature"`
}

func (v *VerificationServiceConfig) IsEmpty() bool {
	if v == nil {
		return true
	}
	return reflect.DeepEqual(v, &VerificationServiceConfig{})
}

// LoadConfig attempts to load a TOML config file from the given path, and coerce it into our object model.
// Before loading, defaults are applied on certain properties, which are overwritten if specified in the TOML file.
func LoadConfig(path string) (*SSIServiceConfig, error) {
	// no path, load default config
	defaultConfig := false
	if path == "" {
		logrus.Info("no config path provided, loading default config...")
		defaultConfig = true
	} else if filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}

	// create the config object
	var config SSIServiceConfig

	// parse and apply defaults
	if err := conf.Parse(os.Args[1:], ServiceName, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)

			return nil, nil

		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}

			fmt.Println(version)
			return nil, nil
		}

		return nil, errors.Wrap(err, "parsing config")
	}

	if defaultConfig {
		config.Services = ServicesConfig{
			StorageProvider: "bolt",
			KeyStoreConfig: KeyStoreServiceConfig{
				BaseServiceConfig:  &BaseServiceConfig{Name: "keystore"},
				ServiceKeyPassword: "default-password",
			},
		}
	} else if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, errors.Wrapf(err, "could not load config: %s", path)
	}

	if password, ok := os.LookupEnv(KeyStorePasswordEnv); ok && password != "" {
		config.Services.KeyStoreConfig.ServiceKeyPassword = password
	}

	applyServiceDefaults(&config.Services)
	return &config, nil
}

// LoadEnv loads variables from an env file into the process environment without overriding variables that are
// already set. A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "could not load env file: %s", path)
	}
	return nil
}

// applyServiceDefaults fills in anything the TOML file left out.
func applyServiceDefaults(s *ServicesConfig) {
	if s.StorageProvider == "" {
		s.StorageProvider = "bolt"
	}
	if s.KeyStoreConfig.BaseServiceConfig == nil {
		s.KeyStoreConfig.BaseServiceConfig = &BaseServiceConfig{Name: "keystore"}
	}

	if s.BlobConfig.BaseServiceConfig == nil {
		s.BlobConfig.BaseServiceConfig = &BaseServiceConfig{Name: "blob"}
	}
	if s.BlobConfig.Provider == "" {
		s.BlobConfig.Provider = StorageBlobProvider
	}
	if s.BlobConfig.Timeout == 0 {
		s.BlobConfig.Timeout = DefaultExternalTimeout
	}

	if s.LedgerConfig.BaseServiceConfig == nil {
		s.LedgerConfig.BaseServiceConfig = &BaseServiceConfig{Name: "ledger"}
	}
	if s.LedgerConfig.Timeout == 0 {
		s.LedgerConfig.Timeout = DefaultExternalTimeout
	}
	if s.LedgerConfig.MaxRetries == 0 {
		s.LedgerConfig.MaxRetries = DefaultLedgerMaxRetries
	}

	if s.RequestConfig.BaseServiceConfig == nil {
		s.RequestConfig.BaseServiceConfig = &BaseServiceConfig{Name: "request"}
	}

	if s.NonceConfig.BaseServiceConfig == nil {
		s.NonceConfig.BaseServiceConfig = &BaseServiceConfig{Name: "nonce"}
	}
	if s.NonceConfig.ProtocolName == "" {
		s.NonceConfig.ProtocolName = DefaultProtocolName
	}
	if s.NonceConfig.TTL == 0 {
		s.NonceConfig.TTL = DefaultNonceTTL
	}
	if s.NonceConfig.SweepInterval == 0 {
		s.NonceConfig.SweepInterval = DefaultNonceSweepInterval
	}

	if s.IssuanceConfig.BaseServiceConfig == nil {
		s.IssuanceConfig.BaseServiceConfig = &BaseServiceConfig{Name: "issuance"}
	}
	if s.IssuanceConfig.IssuerDID == "" {
		s.IssuanceConfig.IssuerDID = DefaultIssuerDID
	}

	if s.DisclosureConfig.BaseServiceConfig == nil {
		s.DisclosureConfig.BaseServiceConfig = &BaseServiceConfig{Name: "disclosure"}
	}
	if s.VerificationConfig.BaseServiceConfig == nil {
		s.VerificationConfig.BaseServiceConfig = &BaseServiceConfig{Name: "verification"}
	}
}
