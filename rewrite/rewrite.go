package rewrite

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/xmidt-org/hestia/xhttp"
)

// Rule inspects and possibly modifies a request before it reaches the rest of the
// handler chain.  A Rule that writes a response returns true, which stops processing.
type Rule interface {
	Apply(http.ResponseWriter, *http.Request) bool
}

// RuleFunc is a function type that implements Rule
type RuleFunc func(http.ResponseWriter, *http.Request) bool

func (rf RuleFunc) Apply(response http.ResponseWriter, request *http.Request) bool {
	return rf(response, request)
}

// ValidURL rejects requests whose URL path contains control or nonprintable
// characters, responding with a 400.
func ValidURL() Rule {
	return RuleFunc(func(response http.ResponseWriter, request *http.Request) bool {
		for _, r := range request.URL.Path {
			if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
				xhttp.WriteError(response, http.StatusBadRequest, "invalid URL")
				return true
			}
		}

		return false
	})
}

// legacy user agents that mishandle TLS connection reuse
var legacyUserAgent = regexp.MustCompile(`MSIE [2-6]\.`)

// LegacyTLSClose forces Connection: close on TLS responses to legacy user agents
// that are known to mishandle persistent TLS connections.
func LegacyTLSClose() Rule {
	return RuleFunc(func(response http.ResponseWriter, request *http.Request) bool {
		if request.TLS != nil && legacyUserAgent.MatchString(request.Header.Get("User-Agent")) {
			response.Header().Set("Connection", "close")
		}

		return false
	})
}

// CompactPath collapses repeated slashes in the URL path
func CompactPath() Rule {
	return RuleFunc(func(_ http.ResponseWriter, request *http.Request) bool {
		if strings.Contains(request.URL.Path, "//") {
			var b strings.Builder
			b.Grow(len(request.URL.Path))
			var previous rune
			for _, r := range request.URL.Path {
				if r != '/' || previous != '/' {
					b.WriteRune(r)
				}

				previous = r
			}

			request.URL.Path = b.String()
			request.URL.RawPath = ""
		}

		return false
	})
}

// PathRewrite rewrites URL paths matching the given pattern using the replacement,
// which may refer to capture groups with $1, $2, and so on.  Nonmatching paths
// pass through unmodified.
func PathRewrite(pattern, replacement string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid path rewrite pattern: %s", pattern)
	}

	return RuleFunc(func(_ http.ResponseWriter, request *http.Request) bool {
		if re.MatchString(request.URL.Path) {
			request.URL.Path = re.ReplaceAllString(request.URL.Path, replacement)
			request.URL.RawPath = ""
		}

		return false
	}), nil
}

// Redirect responds with the given redirect code and a Location computed from the
// replacement whenever the URL path matches the pattern.  A nonpositive code
// defaults to a temporary redirect.
func Redirect(pattern, replacement string, code int) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid redirect pattern: %s", pattern)
	}

	if code <= 0 {
		code = http.StatusFound
	}

	return RuleFunc(func(response http.ResponseWriter, request *http.Request) bool {
		if re.MatchString(request.URL.Path) {
			http.Redirect(response, request, re.ReplaceAllString(request.URL.Path, replacement), code)
			return true
		}

		return false
	}), nil
}

// Handler produces an Alice-style constructor that applies the given rules, in
// order, before delegating to the decorated handler.  Any rule that writes a
// response stops the chain.
func Handler(rules ...Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			for _, rule := range rules {
				if rule.Apply(response, request) {
					return
				}
			}

			next.ServeHTTP(response, request)
		})
	}
}
