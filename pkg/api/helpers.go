package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/openintent-ai/openintent/pkg/authz"
)

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ifMatchVersion parses the required If-Match header on a version-CAS
// write; spec.md §3 invariant 2 requires the header on every such write.
func ifMatchVersion(r *http.Request) (int64, bool) {
	v := r.Header.Get("If-Match")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func principalID(r *http.Request) string {
	p, err := authz.FromContext(r.Context())
	if err != nil {
		return ""
	}
	return p.ID
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
