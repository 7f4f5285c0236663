package deploy

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Descriptor is the JSON document that describes a single deployable context.
// Exactly one of ResourceBase or ProxyTo must be set.
type Descriptor struct {
	// ContextPath is the URL prefix this context is served under.  It must begin
	// with a slash.  The root context is "/".
	ContextPath string `json:"contextPath"`

	// ResourceBase is a directory whose contents are served statically under the
	// context path.
	ResourceBase string `json:"resourceBase,omitempty"`

	// ProxyTo is an upstream URL that requests under the context path are
	// reverse-proxied to.
	ProxyTo string `json:"proxyTo,omitempty"`

	// DirectoryListings permits directory listings for static contexts
	DirectoryListings bool `json:"directoryListings,omitempty"`

	// Headers are additional response headers set on every response from this
	// context.  Values may be any JSON scalar.
	Headers map[string]interface{} `json:"headers,omitempty"`
}

// ReadDescriptor parses a descriptor file
func ReadDescriptor(path string) (d Descriptor, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return d, errors.Wrapf(err, "unable to read descriptor: %s", path)
	}

	if err = json.Unmarshal(data, &d); err != nil {
		return d, errors.Wrapf(err, "unable to parse descriptor: %s", path)
	}

	return d, d.Validate()
}

// Validate verifies this descriptor's invariants
func (d Descriptor) Validate() error {
	if !strings.HasPrefix(d.ContextPath, "/") {
		return errors.Errorf("invalid context path: %q", d.ContextPath)
	}

	switch {
	case len(d.ResourceBase) == 0 && len(d.ProxyTo) == 0:
		return errors.Errorf("context %s: one of resourceBase or proxyTo is required", d.ContextPath)
	case len(d.ResourceBase) > 0 && len(d.ProxyTo) > 0:
		return errors.Errorf("context %s: resourceBase and proxyTo are mutually exclusive", d.ContextPath)
	}

	return nil
}

// noListingFileSystem hides directory listings by refusing to open directories
type noListingFileSystem struct {
	http.FileSystem
}

func (fs noListingFileSystem) Open(name string) (http.File, error) {
	f, err := fs.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.IsDir() {
		index := strings.TrimSuffix(name, "/") + "/index.html"
		if _, err := fs.FileSystem.Open(index); err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
	}

	return f, nil
}

// NewHandler builds the http.Handler for this descriptor
func (d Descriptor) NewHandler() (http.Handler, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if len(d.ProxyTo) > 0 {
		upstream, err := url.Parse(d.ProxyTo)
		if err != nil {
			return nil, errors.Wrapf(err, "context %s: invalid upstream", d.ContextPath)
		} else if len(upstream.Scheme) == 0 || len(upstream.Host) == 0 {
			return nil, errors.Errorf("context %s: invalid upstream: %s", d.ContextPath, d.ProxyTo)
		}

		proxy := httputil.NewSingleHostReverseProxy(upstream)
		return d.withHeaders(d.stripContextPath(proxy)), nil
	}

	if info, err := os.Stat(d.ResourceBase); err != nil {
		return nil, errors.Wrapf(err, "context %s: unable to stat resource base", d.ContextPath)
	} else if !info.IsDir() {
		return nil, errors.Errorf("context %s: resource base is not a directory: %s", d.ContextPath, d.ResourceBase)
	}

	var fs http.FileSystem = http.Dir(d.ResourceBase)
	if !d.DirectoryListings {
		fs = noListingFileSystem{fs}
	}

	return d.withHeaders(d.stripContextPath(http.FileServer(fs))), nil
}

// withHeaders decorates a handler with this descriptor's extra response headers
func (d Descriptor) withHeaders(next http.Handler) http.Handler {
	if len(d.Headers) == 0 {
		return next
	}

	headers := make(map[string]string, len(d.Headers))
	for name, value := range d.Headers {
		headers[name] = cast.ToString(value)
	}

	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		for name, value := range headers {
			response.Header().Set(name, value)
		}

		next.ServeHTTP(response, request)
	})
}

func (d Descriptor) stripContextPath(next http.Handler) http.Handler {
	if d.ContextPath == "/" {
		return next
	}

	return http.StripPrefix(strings.TrimSuffix(d.ContextPath, "/"), next)
}
