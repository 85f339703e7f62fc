package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC health server

	Env   string // "dev" | "prod"
	Store string // "memory" | "sqlite"

	// DB
	DBPath string // e.g. "./data/hallpass.db"

	RestroomLocationID string

	// Escalation thresholds in minutes
	EscalationWarningMinutes int
	EscalationAlertMinutes   int

	// Sweeper
	ArchiveAfterDays     int
	AuditRetentionDays   int // 0 = keep forever
	SweepIntervalMinutes int

	// Archive export; empty bucket disables it
	ArchiveS3Bucket    string
	ArchiveS3Region    string
	ArchiveS3Endpoint  string
	ArchiveS3PathStyle bool
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("HALLPASS_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	storeKind := strings.ToLower(getenvDefault("HALLPASS_STORE", "memory"))
	if storeKind != "memory" && storeKind != "sqlite" {
		storeKind = "memory"
	}

	warning := getenvInt("HALLPASS_ESCALATION_WARNING_MINUTES", 10)
	alert := getenvInt("HALLPASS_ESCALATION_ALERT_MINUTES", 20)
	if alert < warning {
		alert = warning
	}

	interval := getenvInt("HALLPASS_SWEEP_INTERVAL_MINUTES", 1)
	if interval == 0 {
		interval = 1
	}

	return Config{
		HTTPAddr: getenvDefault("HALLPASS_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvOptional("HALLPASS_GRPC_ADDR", ":9090"),
		Env:      env,
		Store:    storeKind,
		DBPath:   getenvDefault("HALLPASS_DB_PATH", "./data/hallpass.db"),

		RestroomLocationID: getenvDefault("HALLPASS_RESTROOM_LOCATION_ID", "restroom"),

		EscalationWarningMinutes: warning,
		EscalationAlertMinutes:   alert,

		ArchiveAfterDays:     getenvInt("HALLPASS_ARCHIVE_AFTER_DAYS", 1),
		AuditRetentionDays:   getenvInt("HALLPASS_AUDIT_RETENTION_DAYS", 30),
		SweepIntervalMinutes: interval,

		ArchiveS3Bucket:    strings.TrimSpace(os.Getenv("HALLPASS_ARCHIVE_S3_BUCKET")),
		ArchiveS3Region:    getenvDefault("HALLPASS_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Endpoint:  strings.TrimSpace(os.Getenv("HALLPASS_ARCHIVE_S3_ENDPOINT")),
		ArchiveS3PathStyle: getenvBool("HALLPASS_ARCHIVE_S3_PATH_STYLE"),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvOptional is getenvDefault, except that a variable set to "off"
// or "-" yields "".
func getenvOptional(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	switch strings.ToLower(v) {
	case "":
		return def
	case "off", "-":
		return ""
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string) bool {
	v := os.Getenv(key)
	return strings.EqualFold(v, "true") || v == "1"
}
