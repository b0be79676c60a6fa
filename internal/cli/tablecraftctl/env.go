package tablecraftctl

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// OptionsFromEnv reads the TABLECRAFT_API_URL, TABLECRAFT_API_KEY,
// TABLECRAFT_TENANT_ID and TABLECRAFT_CLI_TIMEOUT variables. An unparsable
// timeout is reported on warn and replaced by the default.
func OptionsFromEnv(lookup func(string) (string, bool), warn io.Writer) Options {
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}
	options := Options{
		BaseURL:  get("TABLECRAFT_API_URL"),
		APIKey:   get("TABLECRAFT_API_KEY"),
		TenantID: get("TABLECRAFT_TENANT_ID"),
		Timeout:  defaultTimeout,
	}
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:8080"
	}
	if raw := get("TABLECRAFT_CLI_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			if warn != nil {
				_, _ = fmt.Fprintf(warn, "invalid TABLECRAFT_CLI_TIMEOUT %q; using %s\n", raw, defaultTimeout)
			}
		} else {
			options.Timeout = parsed
		}
	}
	return options
}
