package config

import (
	"encoding/base64"
	"time"
)

// DaemonConfig is mostrod's full configuration surface, loaded from
// config.toml with environment-variable overrides via Load.
type DaemonConfig struct {
	Database struct {
		Host            string `toml:"host" env:"MOSTRO_DB_HOST"`
		Port            string `toml:"port" env:"MOSTRO_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"MOSTRO_DB_USER"`
		Password        string `toml:"password" env:"MOSTRO_DB_PASSWORD"`
		DB              string `toml:"db" env:"MOSTRO_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"MOSTRO_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"MOSTRO_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"MOSTRO_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"MOSTRO_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"MOSTRO_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"MOSTRO_REDIS_HOST"`
		Port     string `toml:"port" env:"MOSTRO_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"MOSTRO_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"MOSTRO_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Lightning struct {
		GRPCHost              string `toml:"grpc_host" env:"MOSTRO_LND_GRPC_HOST"`
		GRPCPort              string `toml:"grpc_port" env:"MOSTRO_LND_GRPC_PORT" env-default:"10009"`
		TLSCertPath           string `toml:"tls_cert_path" env:"MOSTRO_LND_TLS_CERT_PATH"`
		MacaroonPath          string `toml:"macaroon_path" env:"MOSTRO_LND_MACAROON_PATH"`
		Network               string `toml:"network" env:"MOSTRO_LND_NETWORK" env-default:"mainnet"`
		PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"MOSTRO_LND_PAYMENT_TIMEOUT_SECONDS" env-default:"60"`
		MaxPaymentFeeSats     int64  `toml:"max_payment_fee_sats" env:"MOSTRO_LND_MAX_PAYMENT_FEE_SATS" env-default:"500"`
		HoldInvoiceCLTVDelta  uint32 `toml:"hold_invoice_cltv_delta" env:"MOSTRO_LND_HOLD_INVOICE_CLTV_DELTA" env-default:"144"`
	} `toml:"lightning"`

	Nostr struct {
		SecretKeyHex string   `toml:"secret_key_hex" env:"MOSTRO_NOSTR_SECRET_KEY_HEX"`
		Relays       []string `toml:"relays"`
	} `toml:"nostr"`

	Mostro struct {
		Instance     string   `toml:"instance" env:"MOSTRO_INSTANCE_NAME" env-default:"mostro"`
		AdminPubkeys []string `toml:"admin_pubkeys"`
	} `toml:"mostro"`

	Rate struct {
		Provider       string   `toml:"provider" env:"MOSTRO_RATE_PROVIDER" env-default:"coinbase"`
		RefreshSeconds int      `toml:"refresh_seconds" env:"MOSTRO_RATE_REFRESH_SECONDS" env-default:"60"`
		FiatCodes      []string `toml:"fiat_codes"`
	} `toml:"rate"`

	Scheduler struct {
		ExpiryIntervalSeconds    int `toml:"expiry_interval_seconds" env:"MOSTRO_SCHED_EXPIRY_SECONDS" env-default:"60"`
		RetryIntervalSeconds     int `toml:"retry_interval_seconds" env:"MOSTRO_SCHED_RETRY_SECONDS" env-default:"120"`
		RepublishIntervalSeconds int `toml:"republish_interval_seconds" env:"MOSTRO_SCHED_REPUBLISH_SECONDS" env-default:"900"`
	} `toml:"scheduler"`

	Admin struct {
		SocketPath        string `toml:"socket_path" env:"MOSTRO_ADMIN_SOCKET_PATH" env-default:"/tmp/mostrod-admin.sock"`
		EvidenceKeyBase64 string `toml:"evidence_key_base64" env:"MOSTRO_DISPUTE_EVIDENCE_KEY"`
	} `toml:"admin"`
}

// RateRefreshInterval converts Rate.RefreshSeconds to a time.Duration for
// scheduler.Config.
func (c *DaemonConfig) RateRefreshInterval() time.Duration {
	return time.Duration(c.Rate.RefreshSeconds) * time.Second
}

func (c *DaemonConfig) ExpiryInterval() time.Duration {
	return time.Duration(c.Scheduler.ExpiryIntervalSeconds) * time.Second
}

func (c *DaemonConfig) RetryInterval() time.Duration {
	return time.Duration(c.Scheduler.RetryIntervalSeconds) * time.Second
}

func (c *DaemonConfig) RepublishInterval() time.Duration {
	return time.Duration(c.Scheduler.RepublishIntervalSeconds) * time.Second
}

// EvidenceKey decodes the dispute evidence encryption key from base64,
// matching the encoding crypto.Encrypt/Decrypt already use for ciphertext.
func (c *DaemonConfig) EvidenceKey() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Admin.EvidenceKeyBase64)
}
