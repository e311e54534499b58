package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/platform/httpx"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
)

// maxErrorBody bounds how much of a failed upstream body is buffered for
// classification.
const maxErrorBody = 64 << 10

// Proxy forwards /api traffic to the upstream school API. Outbound requests
// are authenticated by Transport; failed responses pass through the
// classifier, and hard authentication failures are rewritten into a 401
// envelope carrying the login redirect while the invalidator clears the
// session.
type Proxy struct {
	resolver    *realm.Resolver
	store       *credentials.Store
	classifier  *Classifier
	invalidator *Invalidator
	logger      *slog.Logger
	rp          *httputil.ReverseProxy
}

// NewProxy constructs the upstream proxy. transport is the authenticating
// round tripper.
func NewProxy(upstream *url.URL, transport http.RoundTripper, resolver *realm.Resolver, store *credentials.Store, classifier *Classifier, invalidator *Invalidator, logger *slog.Logger) *Proxy {
	p := &Proxy{
		resolver:    resolver,
		store:       store,
		classifier:  classifier,
		invalidator: invalidator,
		logger:      logger,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			// The classifier must be able to read error bodies. Dropping the
			// browser's Accept-Encoding lets the transport negotiate its own
			// compression, which it decodes transparently.
			pr.Out.Header.Del("Accept-Encoding")
		},
		Transport:      transport,
		ModifyResponse: p.interceptFailure,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			// Network-layer errors are never classified; surface them as-is.
			if logger != nil {
				logger.Warn("upstream unreachable", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.Detail(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// interceptFailure inspects failed upstream responses and applies the
// classification rules. Everything not classified as a hard authentication
// failure is returned to the original caller unchanged.
func (p *Proxy) interceptFailure(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	req := resp.Request
	if req == nil {
		return nil
	}
	ctx := req.Context()
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return nil
	}

	detail := p.readDetail(resp)
	currentPath := shared.AppPathFromContext(ctx)

	failure := Failure{
		Status:      resp.StatusCode,
		Detail:      detail,
		RequestPath: req.URL.Path,
		CurrentPath: currentPath,
	}
	rlm := p.classifier.Realm(failure)
	_, hasCred, err := p.store.Get(ctx, sess.ID, rlm)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("credential lookup during classification", slog.Any("error", err))
		}
		return nil
	}
	failure.HasCredential = hasCred

	outcome := p.classifier.Classify(failure)
	if p.invalidator != nil && p.invalidator.metrics != nil {
		p.invalidator.metrics.ObserveOutcome(string(outcome), string(rlm))
	}
	if outcome != OutcomeHardAuthFailure {
		return nil
	}

	loginPath, performed, err := p.invalidator.Invalidate(ctx, sess.ID, rlm, detail)
	if err != nil && p.logger != nil {
		p.logger.Error("invalidate session", slog.Any("error", err))
	}
	if p.logger != nil {
		p.logger.Info("hard auth failure",
			slog.String("realm", string(rlm)),
			slog.String("path", req.URL.Path),
			slog.Bool("performed", performed),
		)
	}

	envelope, err := json.Marshal(httpx.ErrorEnvelope{Detail: detail, Redirect: loginPath})
	if err != nil {
		return err
	}
	resp.StatusCode = http.StatusUnauthorized
	resp.Status = http.StatusText(http.StatusUnauthorized)
	resp.Body = io.NopCloser(bytes.NewReader(envelope))
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(envelope)))
	resp.ContentLength = int64(len(envelope))
	return nil
}

// readDetail buffers up to maxErrorBody of the error body, splices the
// buffered prefix back in front of the unread remainder, and pulls the
// string form of the upstream detail field. The field-error array form
// exists in the contract but is not consulted by the classifier.
func (p *Proxy) readDetail(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body = &splicedBody{
		Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
		closer: resp.Body,
	}
	if err != nil {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

// splicedBody rejoins a buffered body prefix with the unread remainder while
// keeping the original stream's Close.
type splicedBody struct {
	io.Reader
	closer io.Closer
}

func (b *splicedBody) Close() error {
	return b.closer.Close()
}
