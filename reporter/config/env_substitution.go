package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

var (
	// defaultValueRegex matches VAR:-default
	defaultValueRegex = regexp.MustCompile(`^(.+?):-(.*)$`)
	// requiredValueRegex matches VAR:?message (message optional)
	requiredValueRegex = regexp.MustCompile(`^(.+?):\?(.*)$`)
)

// SubstituteEnvVars expands environment references in metrics.yml content:
//   - ${VAR} is replaced by the value of VAR (empty when unset)
//   - ${VAR:-default} uses default when VAR is empty or unset
//   - ${VAR:?message} fails with message when VAR is empty or unset
//   - $${VAR} is an escape and yields the literal ${VAR}
//
// Every reference is processed even after a failure, the first error is returned.
func SubstituteEnvVars(content string, lookup LookupFunc) (string, error) {
	if lookup == nil {
		lookup = OSLookup
	}
	get := func(name string) string {
		v, _ := lookup(strings.TrimSpace(name))
		return v
	}

	var firstErr error
	var out strings.Builder
	out.Grow(len(content))

	for i := 0; i < len(content); {
		if strings.HasPrefix(content[i:], "$${") {
			end := strings.IndexByte(content[i+3:], '}')
			if end == -1 {
				out.WriteString("${")
				out.WriteString(content[i+3:])
				break
			}
			out.WriteString("${")
			out.WriteString(content[i+3 : i+3+end+1])
			i += 3 + end + 1
			continue
		}

		if !strings.HasPrefix(content[i:], "${") {
			out.WriteByte(content[i])
			i++
			continue
		}

		end := strings.IndexByte(content[i+2:], '}')
		if end == -1 {
			out.WriteByte(content[i])
			i++
			continue
		}
		expr := content[i+2 : i+2+end]
		i += 2 + end + 1

		if m := requiredValueRegex.FindStringSubmatch(expr); m != nil {
			value := get(m[1])
			if value == "" && firstErr == nil {
				msg := strings.TrimSpace(m[2])
				if msg == "" {
					msg = fmt.Sprintf("required environment variable %s is not set", strings.TrimSpace(m[1]))
				}
				firstErr = fmt.Errorf("%s", msg)
			}
			out.WriteString(value)
			continue
		}

		if m := defaultValueRegex.FindStringSubmatch(expr); m != nil {
			value := get(m[1])
			if value == "" {
				value = strings.TrimSpace(m[2])
			}
			out.WriteString(value)
			continue
		}

		out.WriteString(get(expr))
	}

	return out.String(), firstErr
}
