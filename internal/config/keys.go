package config

import "os"

// CredentialSource represents where a credential comes from.
type CredentialSource string

const (
	SourceEnv  CredentialSource = "env"
	SourceNone CredentialSource = "none"
)

// CredentialStatus represents the status of one required credential.
type CredentialStatus struct {
	Name   string           `json:"name"`
	Source CredentialSource `json:"source"`
	IsSet  bool             `json:"is_set"`
	Masked string           `json:"masked,omitempty"` // e.g., "AKI...XYZ"
}

// CheckCredentials returns the status of the credentials the configured
// backends need. With the SQLite time-series backend nothing is required and
// the list is empty.
func CheckCredentials(cfg *Config) []CredentialStatus {
	if cfg.Store.Timeseries != "s3" {
		return nil
	}
	return []CredentialStatus{
		checkEnv("AWS Access Key ID", "AWS_ACCESS_KEY_ID"),
		checkEnv("AWS Secret Access Key", "AWS_SECRET_ACCESS_KEY"),
	}
}

func checkEnv(name, envVar string) CredentialStatus {
	value := os.Getenv(envVar)
	status := CredentialStatus{Name: name, IsSet: value != ""}
	if value != "" {
		status.Source = SourceEnv
		status.Masked = maskSecret(value)
	} else {
		status.Source = SourceNone
	}
	return status
}

// maskSecret masks a credential for display, showing only first 3 and last 3
// characters.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
