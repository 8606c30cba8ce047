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
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"govline/internal/domain"
	"govline/internal/engine"
	"govline/internal/engine/auth"
	"govline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid cycle status transition pending -> done"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Govline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Govline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	authSvc := auth.Service{DB: cfg.Engine.DB, Config: cfg.Engine.Config}

	registerDocs(router, basePath)
	registerHealth(group)
	registerAreas(group, cfg.Engine, authSvc)
	registerUnits(group, cfg.Engine, authSvc)
	registerRoutines(group, cfg.Engine, authSvc)
	registerCycles(group, cfg.Engine, authSvc)
	registerApprovals(group, cfg.Engine, authSvc)
	registerEvidence(group, cfg.Engine, authSvc)
	registerComments(group, cfg.Engine, authSvc)
	registerReports(group, cfg.Engine, authSvc)
	registerProfiles(group, cfg.Engine, authSvc)
	registerNotifications(group, cfg.Engine)
	registerEvents(group, cfg.Engine, authSvc)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var te *engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": te.From, "to": te.To})
	}
	var oe *engine.OutOfOrderError
	if errors.As(err, &oe) {
		return newAPIError(http.StatusConflict, "approval_out_of_order", err.Error(), map[string]any{"order": oe.Order})
	}
	var ue *engine.UnauthorizedApproverError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusForbidden, "not_step_approver", err.Error(), map[string]any{"order": ue.Order})
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ie auth.InactiveProfileError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusForbidden, "profile_inactive", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusGatewayTimeout, "timeout", "upstream call timed out", nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"), strings.Contains(lowered, "already decided"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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

func requirePermission(ctx context.Context, svc auth.Service, perm string) error {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	return svc.Require(ctx, userID, perm)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Govline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerAreas(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-area",
		Method:        http.MethodPost,
		Path:          "/areas",
		Summary:       "Create governance area",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAreaRequest `json:"body"`
	}) (*struct {
		Body AreaResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "area.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateArea(ctx, input.Body.Name, input.Body.Description, input.Body.SortOrder, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AreaResponse `json:"body"`
		}{Body: areaResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-areas",
		Method:      http.MethodGet,
		Path:        "/areas",
		Summary:     "List governance areas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AreaResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAreas(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AreaResponse `json:"body"`
		}{Body: mapAreas(items)}, nil
	})
}

func registerUnits(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-unit",
		Method:        http.MethodPost,
		Path:          "/units",
		Summary:       "Create business unit",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateUnitRequest `json:"body"`
	}) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "unit.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUnit(ctx, input.Body.Code, input.Body.Name, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: unitResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List business units",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UnitResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListUnits(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UnitResponse `json:"body"`
		}{Body: mapUnits(items)}, nil
	})
}

func registerRoutines(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-routine",
		Method:        http.MethodPost,
		Path:          "/routines",
		Summary:       "Create routine",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body RoutineRequest `json:"body"`
	}) (*struct {
		Body RoutineResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "routine.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.CreateRoutine(ctx, routineOptions(input.Body, "", userID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoutineResponse `json:"body"`
		}{Body: routineResponse(rt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-routines",
		Method:      http.MethodGet,
		Path:        "/routines",
		Summary:     "List routines",
	}, func(ctx context.Context, input *struct {
		AreaID    string `query:"area_id"`
		Frequency string `query:"frequency"`
		OwnerID   string `query:"owner_id"`
		Active    bool   `query:"active"`
	}) (*struct {
		Body []RoutineResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListRoutines(ctx, repo.RoutineFilters{
			AreaID:     input.AreaID,
			Frequency:  input.Frequency,
			OwnerID:    input.OwnerID,
			ActiveOnly: input.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RoutineResponse `json:"body"`
		}{Body: mapRoutines(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-routine",
		Method:      http.MethodGet,
		Path:        "/routines/{routine_id}",
		Summary:     "Get routine",
	}, func(ctx context.Context, input *struct {
		RoutineID string `path:"routine_id"`
	}) (*struct {
		Body RoutineResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		rt, err := e.Repo.GetRoutine(ctx, input.RoutineID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoutineResponse `json:"body"`
		}{Body: routineResponse(rt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-routine",
		Method:      http.MethodPut,
		Path:        "/routines/{routine_id}",
		Summary:     "Update routine",
	}, func(ctx context.Context, input *struct {
		RoutineID string         `path:"routine_id"`
		Body      RoutineRequest `json:"body"`
	}) (*struct {
		Body RoutineResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "routine.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.UpdateRoutine(ctx, routineOptions(input.Body, input.RoutineID, userID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoutineResponse `json:"body"`
		}{Body: routineResponse(rt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-routine-active",
		Method:      http.MethodPatch,
		Path:        "/routines/{routine_id}/active",
		Summary:     "Activate or deactivate routine",
	}, func(ctx context.Context, input *struct {
		RoutineID string `path:"routine_id"`
		Body      struct {
			Active bool `json:"active"`
		} `json:"body"`
	}) (*struct {
		Body RoutineResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "routine.manage"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetRoutineActive(ctx, input.RoutineID, input.Body.Active, userID); err != nil {
			return nil, handleError(err)
		}
		rt, err := e.Repo.GetRoutine(ctx, input.RoutineID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoutineResponse `json:"body"`
		}{Body: routineResponse(rt)}, nil
	})
}

func routineOptions(req RoutineRequest, id, actorID string) engine.RoutineOptions {
	return engine.RoutineOptions{
		ID:          id,
		AreaID:      req.AreaID,
		Title:       req.Title,
		Description: req.Description,
		Frequency:   req.Frequency,
		DayOfMonth:  req.DayOfMonth,
		Priority:    req.Priority,
		RiskScore:   req.RiskScore,
		OwnerIDs:    req.OwnerIDs,
		ScopeIDs:    req.ScopeIDs,
		ApproverIDs: req.ApproverIDs,
		ActorID:     actorID,
	}
}

func registerCycles(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cycles",
		Method:      http.MethodGet,
		Path:        "/cycles",
		Summary:     "List cycles in a window",
	}, func(ctx context.Context, input *struct {
		From      string `query:"from" format:"date"`
		To        string `query:"to" format:"date"`
		RoutineID string `query:"routine_id"`
		AreaID    string `query:"area_id"`
		OwnerID   string `query:"owner_id"`
		Status    string `query:"status"`
		Search    string `query:"q"`
	}) (*struct {
		Body []CycleResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		views, err := e.CycleViews(ctx, repo.CycleFilters{
			From:      input.From,
			To:        input.To,
			RoutineID: input.RoutineID,
			AreaID:    input.AreaID,
			OwnerID:   input.OwnerID,
			Status:    input.Status,
			Search:    input.Search,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CycleResponse `json:"body"`
		}{Body: mapCycleViews(views)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ensure-cycles",
		Method:      http.MethodPost,
		Path:        "/cycles/ensure",
		Summary:     "Generate missing cycles for a window",
	}, func(ctx context.Context, input *struct {
		Body EnsureCyclesRequest `json:"body"`
	}) (*struct {
		Body engine.GenerationReport `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.generate"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.EnsureCycles(ctx, input.Body.From, input.Body.To, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GenerationReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-cycle",
		Method:        http.MethodPost,
		Path:          "/cycles",
		Summary:       "Create ad-hoc cycle",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateCycleRequest `json:"body"`
	}) (*struct {
		Body CycleResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.generate"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCycle(ctx, engine.CreateCycleOptions{
			RoutineID: input.Body.RoutineID,
			DueDate:   input.Body.DueDate,
			Notes:     input.Body.Notes,
			ActorID:   userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CycleResponse `json:"body"`
		}{Body: cycleResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-cycle",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}",
		Summary:     "Get cycle with routine and approvals",
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body CycleDetailResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetCycle(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		rt, err := e.Repo.GetRoutine(ctx, c.RoutineID)
		if err != nil {
			return nil, handleError(err)
		}
		steps, err := e.Repo.ListApprovalSteps(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		view := e.ClassifyForNow(c)
		res := CycleDetailResponse{
			CycleResponse: cycleViewResponse(engine.CycleView{Cycle: c, Routine: rt, Bucket: view.Bucket, DaysRemaining: view.DaysRemaining}),
			Routine:       routineResponse(rt),
			Approvals:     mapApprovalSteps(steps),
		}
		return &struct {
			Body CycleDetailResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-cycle-status",
		Method:      http.MethodPatch,
		Path:        "/cycles/{cycle_id}/status",
		Summary:     "Transition cycle status",
		Errors:      []int{http.StatusConflict, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CycleID string                `path:"cycle_id"`
		Body    SetCycleStatusRequest `json:"body"`
	}) (*struct {
		Body CycleResponse `json:"body"`
	}, error) {
		perm := "cycle.transition"
		if input.Body.Status == "cancelled" {
			perm = "cycle.cancel"
		}
		if err := requirePermission(ctx, svc, perm); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SetCycleStatus(ctx, engine.SetStatusOptions{
			CycleID: input.CycleID,
			Status:  input.Body.Status,
			Notes:   input.Body.Notes,
			ActorID: userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CycleResponse `json:"body"`
		}{Body: cycleResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cycle-history",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}/history",
		Summary:     "Cycle audit trail",
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body []HistoryResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetCycle(ctx, input.CycleID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListHistory(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HistoryResponse `json:"body"`
		}{Body: mapHistory(items)}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "record-approval",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/approvals/{order}",
		Summary:     "Record an approval decision",
		Errors:      []int{http.StatusConflict, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CycleID string          `path:"cycle_id"`
		Order   int             `path:"order" minimum:"1"`
		Body    DecisionRequest `json:"body"`
	}) (*struct {
		Body CycleResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "approval.decide"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.RecordDecision(ctx, engine.DecisionOptions{
			CycleID:  input.CycleID,
			Order:    input.Order,
			Decision: input.Body.Decision,
			Comment:  input.Body.Comment,
			ActorID:  userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CycleResponse `json:"body"`
		}{Body: cycleResponse(c)}, nil
	})
}

func registerEvidence(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-evidence",
		Method:        http.MethodPost,
		Path:          "/cycles/{cycle_id}/evidences",
		Summary:       "Attach evidence to a cycle",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		CycleID string                `path:"cycle_id"`
		Body    CreateEvidenceRequest `json:"body"`
	}) (*struct {
		Body EvidenceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.transition"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.AddEvidence(ctx, domainEvidence(input.CycleID, input.Body, userID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvidenceResponse `json:"body"`
		}{Body: evidenceResponse(ev)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-evidences",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}/evidences",
		Summary:     "List cycle evidence",
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body []EvidenceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetCycle(ctx, input.CycleID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListEvidences(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EvidenceResponse `json:"body"`
		}{Body: mapEvidences(items)}, nil
	})
}

func domainEvidence(cycleID string, req CreateEvidenceRequest, userID string) domain.Evidence {
	return domain.Evidence{
		CycleID:   cycleID,
		Type:      req.Type,
		Title:     req.Title,
		URL:       req.URL,
		Note:      req.Note,
		CreatedBy: userID,
	}
}

func registerComments(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/cycles/{cycle_id}/comments",
		Summary:       "Comment on a cycle",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		CycleID string               `path:"cycle_id"`
		Body    CreateCommentRequest `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, input.CycleID, userID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: commentResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}/comments",
		Summary:     "List cycle comments",
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body []CommentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "cycle.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetCycle(ctx, input.CycleID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListComments(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CommentResponse `json:"body"`
		}{Body: mapComments(items)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/reports/dashboard",
		Summary:     "Compliance dashboard counters",
	}, func(ctx context.Context, input *struct {
		From string `query:"from" format:"date"`
		To   string `query:"to" format:"date"`
	}) (*struct {
		Body engine.DashboardStats `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "report.read"); err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Dashboard(ctx, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DashboardStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "priority-queue",
		Method:      http.MethodGet,
		Path:        "/reports/priority",
		Summary:     "Cycles needing attention, highest risk first",
	}, func(ctx context.Context, input *struct {
		From  string `query:"from" format:"date"`
		To    string `query:"to" format:"date"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []CycleResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "report.read"); err != nil {
			return nil, handleError(err)
		}
		views, err := e.PriorityQueue(ctx, input.From, input.To, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CycleResponse `json:"body"`
		}{Body: mapCycleViews(views)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "calendar",
		Method:      http.MethodGet,
		Path:        "/reports/calendar",
		Summary:     "Month calendar of cycles",
	}, func(ctx context.Context, input *struct {
		Year  int `query:"year" minimum:"2000"`
		Month int `query:"month" minimum:"1" maximum:"12"`
	}) (*struct {
		Body []engine.CalendarDay `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "report.read"); err != nil {
			return nil, handleError(err)
		}
		days, err := e.Calendar(ctx, input.Year, time.Month(input.Month))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.CalendarDay `json:"body"`
		}{Body: days}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-cycles",
		Method:      http.MethodGet,
		Path:        "/reports/export",
		Summary:     "Export cycles as XLSX",
	}, func(ctx context.Context, input *struct {
		From string `query:"from" format:"date"`
		To   string `query:"to" format:"date"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		if err := requirePermission(ctx, svc, "report.read"); err != nil {
			return nil, handleError(err)
		}
		data, err := e.ExportCyclesXLSX(ctx, repo.CycleFilters{From: input.From, To: input.To})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        data,
		}, nil
	})
}

func registerProfiles(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current profile, created on first call",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		profile, err := e.EnsureProfile(ctx, p.UserID, p.FullName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(profile)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "List profiles",
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active"`
	}) (*struct {
		Body []ProfileResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "profile.manage"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProfiles(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProfileResponse `json:"body"`
		}{Body: mapProfiles(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/profiles/{user_id}",
		Summary:     "Set profile role and activation",
	}, func(ctx context.Context, input *struct {
		UserID string               `path:"user_id"`
		Body   UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "profile.manage"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		profile, err := e.SetProfileRole(ctx, input.UserID, input.Body.Role, input.Body.Active, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(profile)}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List my notifications",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
	}) (*struct {
		Body []NotificationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, userID, input.Unread)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []NotificationResponse `json:"body"`
		}{Body: mapNotifications(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark notification read",
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, input.NotificationID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit event log",
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, svc, "report.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListEvents(ctx, input.EntityKind, input.EntityID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, EventResponse{
				ID:         evt.ID,
				TS:         evt.TS,
				Type:       evt.Type,
				EntityKind: evt.EntityKind,
				EntityID:   evt.EntityID,
				ActorID:    evt.ActorID,
				Payload:    json.RawMessage(evt.Payload),
			})
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}
