package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/engine/auth"
	"phasegate/internal/store"
)

// EventLister reads the transition audit log.
type EventLister interface {
	ListTransitions(ctx context.Context, workPackageID string, limit int) ([]domain.TransitionEvent, error)
}

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Events   EventLister
	Issuer   auth.Issuer
	BasePath string
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	Log     *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"work_packages wp1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// StatusClientClosedRequest reports a request canceled by the caller.
const StatusClientClosedRequest = 499

// New returns an HTTP handler exposing the phase-gate API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine.Evaluator == nil {
		return nil, errors.New("engine not initialized")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(accessLog(log))
	router.Use(newAuthMiddleware(basePath, cfg.Issuer, log,
		path.Join(basePath, "health"),
		path.Join(basePath, "openapi.json"),
	))
	hcfg := huma.DefaultConfig("Phase Gate API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPhases(group, cfg.Engine)
	registerWorkPackages(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerRecords(group, cfg.Engine)
	registerEvents(group, cfg.Events)
	registerOpenAPI(router, api, basePath)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}
	return router, nil
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's error taxonomy onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var cm *engine.ConcurrentModificationError
	var ee *engine.EvaluationError
	switch {
	case errors.As(err, &cm):
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(),
			map[string]any{"work_package_id": cm.WorkPackageID, "version": cm.Version})
	case errors.Is(err, store.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, context.Canceled):
		return newAPIError(StatusClientClosedRequest, "canceled", "request canceled", nil)
	case errors.As(err, &ee):
		return newAPIError(http.StatusServiceUnavailable, "dependency_error", err.Error(),
			map[string]any{"gate": ee.Gate, "check": ee.Check, "retryable": true})
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusRequestTimeout, "timeout", "request timed out", nil)
	case errors.Is(err, engine.ErrConfiguration):
		return newAPIError(http.StatusInternalServerError, "configuration_error", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
		err  error
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, err = json.Marshal(oas)
		})
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "", "openapi document unavailable", nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Phase Gate API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerPhases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "next-phases",
		Method:      http.MethodGet,
		Path:        "/phases/{phase}/next",
		Summary:     "Successors of a phase",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Phase string `path:"phase"`
	}) (*struct {
		Body NextPhasesResponse `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRead); err != nil {
			return nil, err
		}
		p, err := domain.ParsePhase(input.Phase)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body NextPhasesResponse `json:"body"`
		}{Body: NextPhasesResponse{Phase: p, Next: e.NextPhases(p)}}, nil
	})
}

func registerWorkPackages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-package",
		Method:        http.MethodPost,
		Path:          "/work-packages",
		Summary:       "Create work package",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkPackageRequest `json:"body"`
	}) (*struct {
		Body domain.WorkPackage `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRecordsWrite); err != nil {
			return nil, err
		}
		wp, err := e.CreateWorkPackage(ctx, engine.WorkPackageCreateOptions{
			ID:               input.Body.ID,
			ProjectID:        input.Body.ProjectID,
			Name:             input.Body.Name,
			ScopeDescription: input.Body.ScopeDescription,
			DrawingSetIDs:    input.Body.DrawingSetIDs,
			ReleaseGroup:     input.Body.ReleaseGroup,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkPackage `json:"body"`
		}{Body: wp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-packages",
		Method:      http.MethodGet,
		Path:        "/work-packages",
		Summary:     "List work packages",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []domain.WorkPackage `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRead); err != nil {
			return nil, err
		}
		items, err := e.ListWorkPackages(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkPackage `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-package",
		Method:      http.MethodGet,
		Path:        "/work-packages/{id}",
		Summary:     "Get work package",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.WorkPackage `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRead); err != nil {
			return nil, err
		}
		wp, err := e.GetWorkPackage(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkPackage `json:"body"`
		}{Body: wp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "work-package-readiness",
		Method:      http.MethodGet,
		Path:        "/work-packages/{id}/readiness",
		Summary:     "Evaluate every next phase",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ReadinessResponse `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRead); err != nil {
			return nil, err
		}
		wp, traces, err := e.Readiness(ctx, input.ID, e.DefaultOptions())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReadinessResponse `json:"body"`
		}{Body: ReadinessResponse{WorkPackage: wp, Traces: traces}}, nil
	})
}

func parseTarget(s string) (domain.Phase, error) {
	p, err := domain.ParsePhase(s)
	if err != nil {
		return "", newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"target": s})
	}
	return p, nil
}

func registerTransitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "evaluate-transition",
		Method:      http.MethodPost,
		Path:        "/work-packages/{id}/evaluate",
		Summary:     "Evaluate a phase transition without applying it",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*struct {
		Body domain.TransitionTrace `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRead); err != nil {
			return nil, err
		}
		target, err := parseTarget(input.Body.Target)
		if err != nil {
			return nil, err
		}
		trace, err := e.Evaluate(ctx, input.ID, target, input.Body.Options.apply(e.DefaultOptions()))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TransitionTrace `json:"body"`
		}{Body: trace}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-transition",
		Method:      http.MethodPost,
		Path:        "/work-packages/{id}/transition",
		Summary:     "Evaluate and apply a phase transition",
		Description: "A blocked transition is a 200 response with applied=false and the trace's reasons.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopeRead)
		if err != nil {
			return nil, err
		}
		w, err := auth.PhaseWriter(p, e.Store)
		if err != nil {
			return nil, handleError(err)
		}
		target, err := parseTarget(input.Body.Target)
		if err != nil {
			return nil, err
		}
		wp, trace, err := e.Advance(ctx, w, input.ID, target, input.Body.Options.apply(e.DefaultOptions()))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: TransitionResponse{Applied: trace.Pass, WorkPackage: wp, Trace: trace}}, nil
	})
}

func registerRecords(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-record",
		Method:        http.MethodPost,
		Path:          "/records/{collection}",
		Summary:       "Create a supporting record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Collection string              `path:"collection"`
		Body       CreateRecordRequest `json:"body"`
	}) (*struct {
		Body RecordResponse `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRecordsWrite); err != nil {
			return nil, err
		}
		c, err := store.ParseCollection(input.Collection)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		rec, err := e.AddRecord(ctx, c, input.Body.ID, store.Fields(input.Body.Fields))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecordResponse `json:"body"`
		}{Body: RecordResponse{Collection: string(c), ID: rec.ID, Version: rec.Version, Fields: rec.Fields}}, nil
	})
}

func registerEvents(api huma.API, events EventLister) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transition-events",
		Method:      http.MethodGet,
		Path:        "/work-packages/{id}/events",
		Summary:     "Transition audit log, newest first",
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeRead); err != nil {
			return nil, err
		}
		resp := EventsResponse{Items: []domain.TransitionEvent{}}
		if events != nil {
			items, err := events.ListTransitions(ctx, input.ID, normalizeLimit(input.Limit))
			if err != nil {
				return nil, handleError(err)
			}
			resp.Items = items
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
