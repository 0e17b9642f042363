package api

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
)

// NewAssetProxy forwards reads of model service assets (the images its
// /process responses point at) so clients only ever talk to this backend.
func NewAssetProxy(target *url.URL, timeout time.Duration) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Host = target.Host
			r.SetXForwarded()
		},
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("error proxying model service asset", "path", r.URL.Path, "error", err)
			WriteError(w, CodedErrorf(http.StatusBadGateway, "model service unavailable"))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			WriteError(w, CodedErrorf(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		proxy.ServeHTTP(w, r)
	})
}

// MountAssetProxy routes every prefix (for example /out) to the proxy.
func MountAssetProxy(r chi.Router, prefixes []string, proxy http.Handler) {
	for _, prefix := range prefixes {
		r.Handle(prefix+"/*", proxy)
	}
}
