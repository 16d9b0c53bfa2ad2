package database

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// BuildURL resolves the warehouse connection string. DATABASE_URL wins; when
// it is absent, a Cloud SQL unix-socket connection string is assembled from
// INSTANCE_CONNECTION_NAME, DB_USER, DB_PASSWORD and DB_NAME (Cloud Run mounts
// instances under /cloudsql).
func BuildURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}

	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	socketPath := fmt.Sprintf("/cloudsql/%s", instance)

	// IAM authentication needs no password.
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, user, password, name), nil
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable",
		socketPath, user, name), nil
}

var keywordPasswordPattern = regexp.MustCompile(`password=\S+`)

// RedactURL removes the password from a connection string for safe logging.
// lib/pq accepts both URL-scheme strings and keyword-form DSNs (the form
// BuildURL emits), so both get redacted.
func RedactURL(connStr string) string {
	if strings.HasPrefix(connStr, "postgresql://") || strings.HasPrefix(connStr, "postgres://") {
		scheme, rest, _ := strings.Cut(connStr, "://")
		if creds, host, found := strings.Cut(rest, "@"); found {
			if user, _, hasPassword := strings.Cut(creds, ":"); hasPassword {
				return scheme + "://" + user + ":***@" + host
			}
		}
		return connStr
	}
	return keywordPasswordPattern.ReplaceAllString(connStr, "password=***")
}
