package httpadapter

import (
	_ "embed"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openapiContract []byte

// newValidationMiddleware rejects requests that do not match the
// embedded contract before they reach a handler. A broken contract
// disables validation rather than the whole server.
func newValidationMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiContract)
	if err == nil {
		err = doc.Validate(loader.Context)
	}
	var contract routers.Router
	if err == nil {
		contract, err = gorillamux.NewRouter(doc)
	}
	if err != nil {
		logger.Error("request validation disabled, contract failed to load", "error", err)
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := contract.FindRoute(r)
			if err != nil {
				if errors.Is(err, routers.ErrMethodNotAllowed) {
					writeError(w, http.StatusMethodNotAllowed, "method not allowed")
					return
				}
				// Paths outside the contract (healthz, metrics) pass through.
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				var reqErr *openapi3filter.RequestError
				if errors.As(err, &reqErr) {
					writeError(w, http.StatusBadRequest, reqErr.Error())
					return
				}
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
