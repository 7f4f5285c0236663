package deploy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorValidate(t *testing.T) {
	testData := []struct {
		name       string
		descriptor Descriptor
		valid      bool
	}{
		{"Static", Descriptor{ContextPath: "/static", ResourceBase: "/var/www"}, true},
		{"Proxy", Descriptor{ContextPath: "/api", ProxyTo: "http://localhost:9000"}, true},
		{"Root", Descriptor{ContextPath: "/", ResourceBase: "/var/www"}, true},
		{"NoContextPath", Descriptor{ResourceBase: "/var/www"}, false},
		{"RelativeContextPath", Descriptor{ContextPath: "static", ResourceBase: "/var/www"}, false},
		{"NoTarget", Descriptor{ContextPath: "/static"}, false},
		{"BothTargets", Descriptor{ContextPath: "/static", ResourceBase: "/var/www", ProxyTo: "http://localhost:9000"}, false},
	}

	for _, record := range testData {
		t.Run(record.name, func(t *testing.T) {
			assert := assert.New(t)
			err := record.descriptor.Validate()
			if record.valid {
				assert.NoError(err)
			} else {
				assert.Error(err)
			}
		})
	}
}

func testReadDescriptorMissing(t *testing.T) {
	assert := assert.New(t)
	_, err := ReadDescriptor(filepath.Join(t.TempDir(), "nosuch.json"))
	assert.Error(err)
}

func testReadDescriptorMalformed(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
		path    = filepath.Join(t.TempDir(), "bad.json")
	)

	require.NoError(os.WriteFile(path, []byte(`{"contextPath": `), 0600))
	_, err := ReadDescriptor(path)
	assert.Error(err)
}

func testReadDescriptorSuccess(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)
		path    = filepath.Join(t.TempDir(), "app.json")
	)

	require.NoError(os.WriteFile(path, []byte(`{"contextPath": "/app", "proxyTo": "http://localhost:9000"}`), 0600))
	d, err := ReadDescriptor(path)
	require.NoError(err)
	assert.Equal("/app", d.ContextPath)
	assert.Equal("http://localhost:9000", d.ProxyTo)
}

func TestReadDescriptor(t *testing.T) {
	t.Run("Missing", testReadDescriptorMissing)
	t.Run("Malformed", testReadDescriptorMalformed)
	t.Run("Success", testReadDescriptorSuccess)
}

func testNewHandlerStatic(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		resourceBase = t.TempDir()
	)

	require.NoError(os.WriteFile(filepath.Join(resourceBase, "hello.txt"), []byte("hello, world"), 0600))

	handler, err := Descriptor{ContextPath: "/static", ResourceBase: resourceBase}.NewHandler()
	require.NoError(err)

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest("GET", "/static/hello.txt", nil))
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("hello, world", response.Body.String())

	// no index.html means no directory listing
	response = httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest("GET", "/static/", nil))
	assert.Equal(http.StatusNotFound, response.Code)
}

func testNewHandlerStaticListings(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		resourceBase = t.TempDir()
	)

	require.NoError(os.WriteFile(filepath.Join(resourceBase, "hello.txt"), []byte("hello, world"), 0600))

	handler, err := Descriptor{ContextPath: "/", ResourceBase: resourceBase, DirectoryListings: true}.NewHandler()
	require.NoError(err)

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest("GET", "/", nil))
	assert.Equal(http.StatusOK, response.Code)
	assert.Contains(response.Body.String(), "hello.txt")
}

func testNewHandlerMissingResourceBase(t *testing.T) {
	assert := assert.New(t)
	handler, err := Descriptor{
		ContextPath:  "/static",
		ResourceBase: filepath.Join(t.TempDir(), "nosuch"),
	}.NewHandler()

	assert.Nil(handler)
	assert.Error(err)
}

func testNewHandlerProxy(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		upstream = httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			response.Write([]byte("upstream saw " + request.URL.Path))
		}))
	)

	defer upstream.Close()

	handler, err := Descriptor{ContextPath: "/api", ProxyTo: upstream.URL}.NewHandler()
	require.NoError(err)

	response := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/v1/things", nil)
	handler.ServeHTTP(response, request)
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("upstream saw /v1/things", response.Body.String())
}

func testNewHandlerHeaders(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		resourceBase = t.TempDir()
	)

	require.NoError(os.WriteFile(filepath.Join(resourceBase, "hello.txt"), []byte("hello"), 0600))

	handler, err := Descriptor{
		ContextPath:  "/",
		ResourceBase: resourceBase,
		Headers: map[string]interface{}{
			"X-Frame-Options": "DENY",
			"X-Build":         42,
		},
	}.NewHandler()

	require.NoError(err)

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest("GET", "/hello.txt", nil))
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("DENY", response.Header().Get("X-Frame-Options"))
	assert.Equal("42", response.Header().Get("X-Build"))
}

func testNewHandlerBadUpstream(t *testing.T) {
	for _, proxyTo := range []string{"://nope", "not-a-url", "/just/a/path"} {
		t.Run(proxyTo, func(t *testing.T) {
			assert := assert.New(t)
			handler, err := Descriptor{ContextPath: "/api", ProxyTo: proxyTo}.NewHandler()
			assert.Nil(handler)
			assert.Error(err)
		})
	}
}

func TestNewHandler(t *testing.T) {
	t.Run("Static", testNewHandlerStatic)
	t.Run("StaticListings", testNewHandlerStaticListings)
	t.Run("MissingResourceBase", testNewHandlerMissingResourceBase)
	t.Run("Headers", testNewHandlerHeaders)
	t.Run("Proxy", testNewHandlerProxy)
	t.Run("BadUpstream", testNewHandlerBadUpstream)
}
