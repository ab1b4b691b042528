// Package credential defines the named secret bundle type consumed by the
// auth resolver (spec §3, §4.4).
package credential

// Credential is a named record holding type-specific connection data.
type Credential struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Data        map[string]any    `json:"data"`
	Meta        map[string]any    `json:"meta,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"-"`
}

// Known credential type handlers (§4.4).
const (
	TypePostgres  = "postgres"
	TypeGCS       = "gcs"
	TypeGCSHMAC   = "gcs_hmac"
	TypeS3        = "s3"
	TypeSnowflake = "snowflake"
)
