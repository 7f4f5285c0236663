package realm

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/hestia/clock/clocktest"
	"github.com/xmidt-org/hestia/logging"
)

func writeRealmFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "realm.properties")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func md5Of(password string) string {
	digest := md5.Sum([]byte(password))
	return hex.EncodeToString(digest[:])
}

func shaOf(password string) string {
	digest := sha1.Sum([]byte(password))
	return base64.StdEncoding.EncodeToString(digest[:])
}

func testNewMissingFile(t *testing.T) {
	assert := assert.New(t)

	r, err := New(Options{})
	assert.Nil(r)
	assert.Error(err)

	r, err = New(Options{File: filepath.Join(t.TempDir(), "nosuch.properties")})
	assert.Nil(r)
	assert.Error(err)
}

func testNewMalformed(t *testing.T) {
	testData := []string{
		"no colon here",
		": missingname",
		"admin: MD5:zzzz",
		"admin: SHA:%%%%",
	}

	for _, content := range testData {
		t.Run(content, func(t *testing.T) {
			assert := assert.New(t)
			r, err := New(Options{
				Logger: logging.NewTestLogger(nil, t),
				File:   writeRealmFile(t, content),
			})

			assert.Nil(r)
			assert.Error(err)
		})
	}
}

func testNewSuccess(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		content = fmt.Sprintf(`
# users for the admin interface
admin: %s,server-administrator,user
operator: SHA:%s, user
plainuser: opensesame
norole: %s
`,
			md5Prefix+md5Of("secret"),
			shaOf("hunter2"),
			"password",
		)
	)

	r, err := New(Options{
		Logger: logging.NewTestLogger(nil, t),
		File:   writeRealmFile(t, content),
	})

	require.NoError(err)
	require.NotNil(r)
	assert.Equal(DefaultName, r.Name())

	assert.True(r.Authenticate("admin", "secret"))
	assert.False(r.Authenticate("admin", "wrong"))
	assert.True(r.Authenticate("operator", "hunter2"))
	assert.True(r.Authenticate("plainuser", "opensesame"))
	assert.False(r.Authenticate("nosuchuser", "whatever"))

	assert.True(r.InRole("admin", "server-administrator"))
	assert.True(r.InRole("admin", "user"))
	assert.True(r.InRole("operator", "user"))
	assert.False(r.InRole("operator", "server-administrator"))
	assert.False(r.InRole("norole", "user"))
	assert.False(r.InRole("nosuchuser", "user"))
}

func TestNew(t *testing.T) {
	t.Run("MissingFile", testNewMissingFile)
	t.Run("Malformed", testNewMalformed)
	t.Run("Success", testNewSuccess)
}

func TestRefresh(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		path = writeRealmFile(t, "admin: first")
	)

	r, err := New(Options{
		Logger: logging.NewTestLogger(nil, t),
		File:   path,
	})

	require.NoError(err)
	assert.True(r.Authenticate("admin", "first"))

	// unchanged mod time is a noop
	require.NoError(r.Refresh())
	assert.True(r.Authenticate("admin", "first"))

	require.NoError(os.WriteFile(path, []byte("admin: second"), 0600))
	later := time.Now().Add(time.Hour)
	require.NoError(os.Chtimes(path, later, later))

	require.NoError(r.Refresh())
	assert.False(r.Authenticate("admin", "first"))
	assert.True(r.Authenticate("admin", "second"))

	// a deleted file is an error, and the previous users remain usable
	require.NoError(os.Remove(path))
	assert.Error(r.Refresh())
	assert.True(r.Authenticate("admin", "second"))
}

func TestRun(t *testing.T) {
	var (
		require = require.New(t)

		ticks  = make(chan time.Time)
		ticker = new(clocktest.MockTicker)
		c      = new(clocktest.Mock)

		waitGroup = new(sync.WaitGroup)
		shutdown  = make(chan struct{})
	)

	r, err := New(Options{
		Logger: logging.NewTestLogger(nil, t),
		Clock:  c,
		File:   writeRealmFile(t, "admin: secret"),
	})

	require.NoError(err)

	c.OnNewTicker(DefaultRefreshInterval, ticker).Once()
	ticker.OnC(ticks)
	ticker.OnStop().Once()

	require.NoError(r.Run(waitGroup, shutdown))
	require.NoError(r.Run(waitGroup, shutdown)) // idempotent

	ticks <- time.Now()
	close(shutdown)
	waitGroup.Wait()

	c.AssertExpectations(t)
	ticker.AssertExpectations(t)
}

func TestBasicAuth(t *testing.T) {
	var (
		require = require.New(t)

		content = "admin: secret,server-administrator\nuser: password,user"
	)

	r, err := New(Options{
		Logger: logging.NewTestLogger(nil, t),
		Name:   "test-realm",
		File:   writeRealmFile(t, content),
	})

	require.NoError(err)

	testData := []struct {
		name         string
		roles        []string
		username     string
		password     string
		expectedCode int
	}{
		{"NoCredentials", nil, "", "", http.StatusUnauthorized},
		{"BadPassword", nil, "admin", "wrong", http.StatusUnauthorized},
		{"UnknownUser", nil, "ghost", "boo", http.StatusUnauthorized},
		{"NoRolesRequired", nil, "admin", "secret", http.StatusOK},
		{"HasRole", []string{"server-administrator"}, "admin", "secret", http.StatusOK},
		{"AnyOfRoles", []string{"server-administrator", "user"}, "user", "password", http.StatusOK},
		{"MissingRole", []string{"server-administrator"}, "user", "password", http.StatusForbidden},
	}

	for _, record := range testData {
		t.Run(record.name, func(t *testing.T) {
			var (
				assert = assert.New(t)
				next   = http.HandlerFunc(func(response http.ResponseWriter, _ *http.Request) {
					response.WriteHeader(http.StatusOK)
				})

				response = httptest.NewRecorder()
				request  = httptest.NewRequest("GET", "/admin", nil)
			)

			if len(record.username) > 0 {
				request.SetBasicAuth(record.username, record.password)
			}

			BasicAuth(r, record.roles...)(next).ServeHTTP(response, request)
			assert.Equal(record.expectedCode, response.Code)

			if record.expectedCode == http.StatusUnauthorized {
				assert.Equal(`Basic realm="test-realm"`, response.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
