package deploy

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/xmidt-org/hestia/xhttp"
)

// Context is a single deployed application
type Context struct {
	// File is the descriptor file this context was deployed from
	File string

	// Descriptor is the parsed deployment descriptor
	Descriptor Descriptor

	handler http.Handler
}

// Contexts is an immutable set of deployed applications with longest-prefix
// request routing.  A Deployer swaps whole Contexts values atomically, so that
// requests in flight on an older set are never disturbed by a redeploy.
type Contexts struct {
	router   *mux.Router
	deployed []Context
}

// NewContexts builds a routing set from deployed contexts.  Longer context paths
// are matched before shorter ones, so "/api/v2" wins over "/api" for requests
// under "/api/v2".
func NewContexts(deployed []Context) *Contexts {
	sorted := make([]Context, len(deployed))
	copy(sorted, deployed)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Descriptor.ContextPath) > len(sorted[j].Descriptor.ContextPath)
	})

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		xhttp.WriteErrorf(response, http.StatusNotFound, "no context matches %s", request.URL.Path)
	})

	for _, c := range sorted {
		prefix := strings.TrimSuffix(c.Descriptor.ContextPath, "/")
		if len(prefix) == 0 {
			router.PathPrefix("/").Handler(c.handler)
			continue
		}

		// match the exact prefix and anything below it, but not "/apiary" for "/api"
		router.Path(prefix).Handler(c.handler)
		router.PathPrefix(prefix + "/").Handler(c.handler)
	}

	return &Contexts{
		router:   router,
		deployed: sorted,
	}
}

// Deployed returns the deployed contexts, longest context path first
func (c *Contexts) Deployed() []Context {
	return c.deployed
}

func (c *Contexts) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	c.router.ServeHTTP(response, request)
}
