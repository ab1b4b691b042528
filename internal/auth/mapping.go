package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// PostgresConnFields maps a ResolvedAuth's payload onto the connection
// fields a postgres plugin needs, applying the defaults the catalog
// normally fills in for inline credentials.
func PostgresConnFields(a ResolvedAuth) map[string]string {
	get := func(k, def string) string {
		if v, ok := a.Payload[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
		return def
	}
	return map[string]string{
		"host":     get("host", "localhost"),
		"port":     get("port", "5432"),
		"user":     get("user", ""),
		"password": get("password", ""),
		"database": get("database", ""),
		"sslmode":  get("sslmode", "prefer"),
	}
}

// HTTPHeaders builds the Authorization/API-key headers an HTTP plugin
// should attach for a ResolvedAuth, based on its configured scheme.
func HTTPHeaders(a ResolvedAuth) map[string]string {
	headers := map[string]string{}
	scheme, _ := a.Payload["scheme"].(string)
	switch strings.ToLower(scheme) {
	case "basic":
		user, _ := a.Payload["user"].(string)
		pass, _ := a.Payload["password"].(string)
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		headers["Authorization"] = "Basic " + token
	case "api_key", "apikey":
		headerName, _ := a.Payload["header"].(string)
		if headerName == "" {
			headerName = "X-API-Key"
		}
		if key, ok := a.Payload["api_key"].(string); ok {
			headers[headerName] = key
		}
	default:
		if token, ok := a.Payload["token"].(string); ok && token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}
	return headers
}

// DuckDBSecretProvider identifies the CREATE SECRET provider for a
// credential type, per spec §4.5's DuckDB plugin lifecycle.
func DuckDBSecretProvider(credentialType string) string {
	switch credentialType {
	case "gcs", "gcs_service_account":
		return "GCS"
	case "gcs_hmac":
		return "GCS"
	case "s3":
		return "S3"
	case "postgres":
		return "POSTGRES"
	case "snowflake":
		return "SNOWFLAKE"
	default:
		return strings.ToUpper(credentialType)
	}
}

// DuckDBSecretDDL renders the CREATE SECRET statement for a resolved auth
// item, named secretName.
func DuckDBSecretDDL(secretName string, a ResolvedAuth) (string, error) {
	provider := DuckDBSecretProvider(a.Service)
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE SECRET %s (\n  TYPE %s", quoteIdent(secretName), provider)

	switch a.Service {
	case "gcs", "gcs_service_account":
		if key, ok := a.Payload["key_id"].(string); ok {
			fmt.Fprintf(&b, ",\n  KEY_ID %s", quoteLiteral(key))
		}
		if secret, ok := a.Payload["secret"].(string); ok {
			fmt.Fprintf(&b, ",\n  SECRET %s", quoteLiteral(secret))
		}
	case "gcs_hmac":
		fmt.Fprintf(&b, ",\n  PROVIDER CREDENTIAL_CHAIN")
	case "s3":
		if key, ok := a.Payload["access_key_id"].(string); ok {
			fmt.Fprintf(&b, ",\n  KEY_ID %s", quoteLiteral(key))
		}
		if secret, ok := a.Payload["secret_access_key"].(string); ok {
			fmt.Fprintf(&b, ",\n  SECRET %s", quoteLiteral(secret))
		}
		if region, ok := a.Payload["region"].(string); ok {
			fmt.Fprintf(&b, ",\n  REGION %s", quoteLiteral(region))
		}
	case "postgres":
		fields := PostgresConnFields(a)
		fmt.Fprintf(&b, ",\n  HOST %s,\n  PORT %s,\n  USER %s,\n  PASSWORD %s,\n  DATABASE %s",
			quoteLiteral(fields["host"]), quoteLiteral(fields["port"]), quoteLiteral(fields["user"]),
			quoteLiteral(fields["password"]), quoteLiteral(fields["database"]))
	case "snowflake":
		if account, ok := a.Payload["account"].(string); ok {
			fmt.Fprintf(&b, ",\n  ACCOUNT %s", quoteLiteral(account))
		}
	}

	b.WriteString("\n);")
	return b.String(), nil
}

func quoteIdent(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
