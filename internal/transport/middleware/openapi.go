package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

// OpenAPIValidator rejects JSON requests that do not match api/openapi.yml.
// Routes the document does not describe pass through untouched.
type OpenAPIValidator struct {
	*transport.BaseHandler
	router routers.Router
}

func NewOpenAPIValidator(path string, logger *slog.Logger) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	return newOpenAPIValidator(loader.Context, doc, logger)
}

func NewOpenAPIValidatorFromData(data []byte, logger *slog.Logger) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	return newOpenAPIValidator(loader.Context, doc, logger)
}

func newOpenAPIValidator(ctx context.Context, doc *openapi3.T, logger *slog.Logger) (*OpenAPIValidator, error) {
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	// match on path only, whichever host serves the request
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &OpenAPIValidator{BaseHandler: transport.NewBaseHandler(logger), router: router}, nil
}

func (v *OpenAPIValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
				next.ServeHTTP(w, r)
				return
			}
			v.Logger.Warn("openapi route lookup failed", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.HandleError(w, internal.NewValidationError("request does not match the API schema", internal.ErrCodeValidationFailed).
				WithDetails(schemaErrors(err)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func schemaErrors(err error) internal.ValidationErrors {
	var out internal.ValidationErrors
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			out.Errors = append(out.Errors, schemaError(e))
		}
		return out
	}
	out.Errors = append(out.Errors, schemaError(err))
	return out
}

func schemaError(err error) internal.ValidationError {
	field := ""
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Parameter != nil {
		field = reqErr.Parameter.Name
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			field = ptr[len(ptr)-1]
		}
		return internal.ValidationError{Field: field, Message: schemaErr.Reason, Code: string(internal.ErrCodeValidationFailed)}
	}
	return internal.ValidationError{Field: field, Message: err.Error(), Code: string(internal.ErrCodeValidationFailed)}
}
