// Package proxy implements the per-request gateway pipeline: route match,
// upstream URI construction, header processing, dispatch, and response
// relay. It is a hand-rolled reverse proxy rather than httputil.ReverseProxy.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/ferragate/gateway/internal/reqid"
	"github.com/ferragate/gateway/internal/routematch"
	"github.com/ferragate/gateway/internal/upstream"
)

// Kind is the small error taxonomy distinguishing why a request failed,
// surfaced to the client and to the access log.
type Kind string

const (
	KindNoRoute           Kind = "NoRoute"
	KindMethodNotAllowed  Kind = "MethodNotAllowed"
	KindUpstreamConnect   Kind = "UpstreamConnect"
	KindUpstreamTimeout   Kind = "UpstreamTimeout"
	KindUpstreamMalformed Kind = "UpstreamMalformed"
	KindInternal          Kind = "Internal"
)

// statusFor maps each Kind to the client-visible HTTP status.
var statusFor = map[Kind]int{
	KindNoRoute:           http.StatusNotFound,
	KindMethodNotAllowed:  http.StatusMethodNotAllowed,
	KindUpstreamConnect:   http.StatusBadGateway,
	KindUpstreamTimeout:   http.StatusGatewayTimeout,
	KindUpstreamMalformed: http.StatusBadGateway,
	KindInternal:          http.StatusInternalServerError,
}

// Handler ties the compiled route table to the shared upstream transport.
type Handler struct {
	Table    *routematch.Table
	Upstream *upstream.Registry
	Log      *slog.Logger
}

// New builds a Handler from a compiled route table and the shared upstream
// registry.
func New(table *routematch.Table, up *upstream.Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Table: table, Upstream: up, Log: log}
}

var _ http.Handler = (*Handler)(nil)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := reqid.FromContext(r.Context())
	if id == "" {
		id = reqid.FromRequest(r)
	}
	w.Header().Set(reqid.Header, id)

	res := routematch.Match(h.Table, r.Method, r.Host, r.URL.Path)
	if res.Route == nil {
		if res.MethodNA {
			w.Header().Set("Allow", strings.Join(res.Allowed, ", "))
			h.writeError(w, KindMethodNotAllowed, id)
			h.Log.Debug("method not allowed", "request_id", id, "method", r.Method, "path", r.URL.Path, "allow", res.Allowed)
			return
		}
		h.writeError(w, KindNoRoute, id)
		h.Log.Debug("no route", "request_id", id, "method", r.Method, "host", r.Host, "path", r.URL.Path)
		return
	}

	route := res.Route
	upURL, err := url.Parse(route.Upstream)
	if err != nil {
		h.Log.Error("invalid upstream URL", "request_id", id, "route", route.Name, "err", err)
		h.writeError(w, KindInternal, id)
		return
	}

	target := new(url.URL)
	*target = *upURL
	target.Path = routematch.RewritePath(upURL.Path, r.URL.Path, res.Suffix, route.StripPath)
	target.RawQuery = r.URL.RawQuery
	target.Fragment = ""

	hdr := cloneHeaderWithoutHopByHop(r.Header)
	addXFF(hdr, r.RemoteAddr)
	setXFProto(hdr, r)
	hdr.Set("X-Forwarded-Host", r.Host)
	for k, v := range route.Headers {
		hdr.Set(k, v)
	}

	timeout := route.Timeout()
	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		h.Log.Error("build upstream request", "request_id", id, "route", route.Name, "err", err)
		h.writeError(w, KindInternal, id)
		return
	}
	outReq.Header = hdr
	if route.PreserveHost {
		outReq.Host = r.Host
	} else {
		outReq.Host = upURL.Host
	}
	outReq.ContentLength = r.ContentLength

	resp, err := h.Upstream.RoundTripper().RoundTrip(outReq)
	if err != nil {
		kind := classifyDialError(err)
		h.Log.Warn("upstream dispatch failed", "request_id", id, "route", route.Name, "kind", kind, "err", err)
		h.writeError(w, kind, id)
		return
	}
	defer resp.Body.Close()

	replaceHeaders(w.Header(), resp.Header)
	if len(resp.Trailer) > 0 {
		trailerKeys := make([]string, 0, len(resp.Trailer))
		for k := range resp.Trailer {
			trailerKeys = append(trailerKeys, k)
		}
		w.Header().Set("Trailer", strings.Join(trailerKeys, ", "))
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.Log.Warn("upstream response timed out mid-stream", "request_id", id, "route", route.Name)
		} else {
			h.Log.Debug("client disconnected mid-response", "request_id", id, "route", route.Name, "err", err)
		}
		return
	}
	for k, vv := range resp.Trailer {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
}

// errorBody is the client-visible JSON error shape.
type errorBody struct {
	Error     Kind   `json:"error"`
	RequestID string `json:"request_id"`
}

func (h *Handler) writeError(w http.ResponseWriter, kind Kind, id string) {
	status := statusFor[kind]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(reqid.Header, id)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: kind, RequestID: id})
}

// classifyDialError distinguishes the upstream failure modes: a deadline
// exceeded anywhere in the dial/request lifecycle is a timeout,
// everything else reaching RoundTrip's error return is a connect failure
// (DNS, TCP refusal, TLS handshake failure all surface the same way here).
func classifyDialError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindUpstreamTimeout
	}
	return KindUpstreamConnect
}

// --- header helpers ---

var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"TE":                  {},
	"Trailer":             {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// connectionNamed collects the extra header names an inbound Connection
// header asks to be stripped, beyond the fixed hopByHop set.
func connectionNamed(h http.Header) map[string]struct{} {
	var named map[string]struct{}
	for _, f := range h.Values("Connection") {
		for _, k := range strings.Split(f, ",") {
			k = textproto.CanonicalMIMEHeaderKey(textproto.TrimString(k))
			if k == "" {
				continue
			}
			if named == nil {
				named = make(map[string]struct{})
			}
			named[k] = struct{}{}
		}
	}
	return named
}

// cloneHeaderWithoutHopByHop copies h, dropping the fixed hop-by-hop set and
// anything the inbound Connection header names for removal.
func cloneHeaderWithoutHopByHop(h http.Header) http.Header {
	named := connectionNamed(h)
	out := make(http.Header, len(h))
	for k, vv := range h {
		if _, drop := hopByHop[k]; drop {
			continue
		}
		if _, drop := named[k]; drop {
			continue
		}
		cc := make([]string, len(vv))
		copy(cc, vv)
		out[k] = cc
	}
	return out
}

// replaceHeaders overwrites dst's entries with src's, dropping the
// hop-by-hop set and anything src's own Connection header names.
func replaceHeaders(dst, src http.Header) {
	named := connectionNamed(src)
	for k, vv := range src {
		if _, drop := hopByHop[k]; drop {
			continue
		}
		if _, drop := named[k]; drop {
			continue
		}
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func addXFF(h http.Header, remoteAddr string) {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || ip == "" {
		ip = remoteAddr
	}
	if ip == "" {
		return
	}
	const key = "X-Forwarded-For"
	if prior := h.Get(key); prior != "" {
		h.Set(key, prior+", "+ip)
	} else {
		h.Set(key, ip)
	}
}

func setXFProto(h http.Header, r *http.Request) {
	if r.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}
}
