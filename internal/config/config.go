package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL  string // STORESCAN_DATABASE_URL (required)
	GRPCAddr     string // STORESCAN_GRPC_ADDR (default ":9090")
	HTTPAddr     string // STORESCAN_HTTP_ADDR (default ":8080")
	NATSURL      string // STORESCAN_NATS_URL (optional, empty = no events unless embedded)
	NATSEmbedded bool   // STORESCAN_NATS_EMBEDDED (run an in-process NATS server)
	NATSPort     int    // STORESCAN_NATS_PORT (embedded server port, default 4222)
	AuthToken    string // STORESCAN_AUTH_TOKEN (optional, empty = auth disabled)

	// ScopeTokens grants extra bearer tokens access to a fixed set of store
	// scopes. STORESCAN_SCOPE_TOKENS="tok1:Cherechiu,Adoni;tok2:*"
	ScopeTokens map[string][]string

	// Backup settings
	BackupInterval   time.Duration // STORESCAN_BACKUP_INTERVAL (default 15m; 0 = disabled)
	BackupS3Bucket   string        // STORESCAN_BACKUP_S3_BUCKET (enables backup when set)
	BackupS3Endpoint string        // STORESCAN_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string        // STORESCAN_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Prefix   string        // STORESCAN_BACKUP_S3_PREFIX (default "storescan")
	BackupDir        string        // STORESCAN_BACKUP_DIR (enables a local file backup when set)
	BackupKeep       int           // STORESCAN_BACKUP_KEEP (dated local snapshots kept, default 7; 0 = latest only)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("STORESCAN_DATABASE_URL"),
		GRPCAddr:         envOrDefault("STORESCAN_GRPC_ADDR", ":9090"),
		HTTPAddr:         envOrDefault("STORESCAN_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("STORESCAN_NATS_URL"),
		AuthToken:        os.Getenv("STORESCAN_AUTH_TOKEN"),
		BackupS3Bucket:   os.Getenv("STORESCAN_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("STORESCAN_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("STORESCAN_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Prefix:   envOrDefault("STORESCAN_BACKUP_S3_PREFIX", "storescan"),
		BackupDir:        os.Getenv("STORESCAN_BACKUP_DIR"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("STORESCAN_DATABASE_URL is required")
	}

	if v := os.Getenv("STORESCAN_NATS_EMBEDDED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("STORESCAN_NATS_EMBEDDED: %w", err)
		}
		c.NATSEmbedded = b
	}

	port, err := strconv.Atoi(envOrDefault("STORESCAN_NATS_PORT", "4222"))
	if err != nil {
		return nil, fmt.Errorf("STORESCAN_NATS_PORT: %w", err)
	}
	c.NATSPort = port

	tokens, err := ParseScopeTokens(os.Getenv("STORESCAN_SCOPE_TOKENS"))
	if err != nil {
		return nil, fmt.Errorf("STORESCAN_SCOPE_TOKENS: %w", err)
	}
	c.ScopeTokens = tokens

	d, err := time.ParseDuration(envOrDefault("STORESCAN_BACKUP_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("STORESCAN_BACKUP_INTERVAL: %w", err)
	}
	c.BackupInterval = d

	keep, err := strconv.Atoi(envOrDefault("STORESCAN_BACKUP_KEEP", "7"))
	if err != nil || keep < 0 {
		return nil, fmt.Errorf("STORESCAN_BACKUP_KEEP: want a count >= 0, got %q", os.Getenv("STORESCAN_BACKUP_KEEP"))
	}
	c.BackupKeep = keep

	return c, nil
}

// ParseScopeTokens parses "tok1:ScopeA,ScopeB;tok2:*". A "*" scope grants
// every scope. Empty input yields a nil map.
func ParseScopeTokens(s string) (map[string][]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string][]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, scopes, ok := strings.Cut(entry, ":")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return nil, fmt.Errorf("malformed entry %q (want token:scope[,scope])", entry)
		}
		for _, scope := range strings.Split(scopes, ",") {
			if scope = strings.TrimSpace(scope); scope != "" {
				out[token] = append(out[token], scope)
			}
		}
		if len(out[token]) == 0 {
			return nil, fmt.Errorf("token %q grants no scopes", token)
		}
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
