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

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"inproc/internal/domain"
	"inproc/internal/engine"
	"inproc/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"request 7 is Closed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the in-processing API.
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
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Inproc API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerRequests(group, cfg.Engine)
	registerChecklist(group, cfg.Engine)
	registerRoles(group, cfg.Engine)
	registerEmails(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrValidation) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Inproc API Docs</title>
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

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Create in-processing request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Actor string           `header:"X-Actor"`
		Body  RequestAttrsBody `json:"body"`
	}) (*struct {
		Body CreateRequestResponse `json:"body"`
	}, error) {
		res, err := e.CreateRequest(ctx, input.Body.toAttrs(), actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateRequestResponse `json:"body"`
		}{Body: CreateRequestResponse{
			Request:       requestResponse(res.Request),
			Checklist:     mapItems(res.Checklist),
			NotifyWarning: warning(res.NotifyErr),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List in-processing requests",
	}, func(ctx context.Context, input *struct {
		SupervisorID int64 `query:"supervisor_id"`
		EmployeeID   int64 `query:"employee_id"`
		UserID       int64 `query:"user_id"`
		Open         bool  `query:"open"`
	}) (*struct {
		Body []RequestResponse `json:"body"`
	}, error) {
		items, err := e.ListRequests(ctx, repo.RequestFilters{
			SupervisorID: input.SupervisorID,
			EmployeeID:   input.EmployeeID,
			UserID:       input.UserID,
			OpenOnly:     input.Open,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RequestResponse `json:"body"`
		}{Body: mapRequests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}",
		Summary:     "Get request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID int64 `path:"request_id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := e.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-request",
		Method:      http.MethodPatch,
		Path:        "/requests/{request_id}",
		Summary:     "Update request attributes",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequestID int64            `path:"request_id"`
		Actor     string           `header:"X-Actor"`
		Body      RequestAttrsBody `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := e.UpdateRequest(ctx, input.RequestID, input.Body.toAttrs(), actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/close",
		Summary:     "Close request",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequestID int64  `path:"request_id"`
		Actor     string `header:"X-Actor"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := e.CloseRequest(ctx, input.RequestID, actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-request",
		Method:        http.MethodDelete,
		Path:          "/requests/{request_id}",
		Summary:       "Delete request",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID int64  `path:"request_id"`
		Actor     string `header:"X-Actor"`
	}) (*struct{}, error) {
		if err := e.DeleteRequest(ctx, input.RequestID, actorOrDefault(input.Actor)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/cancel",
		Summary:     "Cancel request",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequestID int64             `path:"request_id"`
		Actor     string            `header:"X-Actor"`
		Body      CancelRequestBody `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := e.CancelRequest(ctx, input.RequestID, input.Body.Reason, actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})
}

func registerChecklist(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-checklist",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}/checklist",
		Summary:     "List checklist items for a request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID int64 `path:"request_id"`
	}) (*struct {
		Body []ChecklistItemResponse `json:"body"`
	}, error) {
		items, err := e.Checklist(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ChecklistItemResponse `json:"body"`
		}{Body: mapItems(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-checklist-item",
		Method:      http.MethodPost,
		Path:        "/checklist/{item_id}/complete",
		Summary:     "Complete a checklist item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID int64            `path:"item_id"`
		Actor  string           `header:"X-Actor"`
		Body   CompleteItemBody `json:"body"`
	}) (*struct {
		Body CompleteItemResponse `json:"body"`
	}, error) {
		if input.Body.CompletedByEmail == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "completed_by_email is required", nil)
		}
		user, err := e.Repo.GetUserByEmail(ctx, input.Body.CompletedByEmail)
		if err != nil {
			return nil, handleError(fmt.Errorf("completed_by_email: %w", err))
		}
		res, err := e.CompleteItem(ctx, input.ItemID, user.ID, actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		var activated []domain.ChecklistItem
		for _, role := range domain.AllRoles {
			activated = append(activated, res.Activated[role]...)
		}
		return &struct {
			Body CompleteItemResponse `json:"body"`
		}{Body: CompleteItemResponse{
			Item:             itemResponse(res.Item),
			AlreadyCompleted: res.AlreadyCompleted,
			Activated:        mapItems(activated),
			NotifyWarning:    warning(res.NotifyErr),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reactivate-checklist-item",
		Method:      http.MethodPost,
		Path:        "/checklist/{item_id}/reactivate",
		Summary:     "Reopen a completed checklist item",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID int64  `path:"item_id"`
		Actor  string `header:"X-Actor"`
	}) (*struct {
		Body ChecklistItemResponse `json:"body"`
	}, error) {
		item, err := e.ReactivateItem(ctx, input.ItemID, actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistItemResponse `json:"body"`
		}{Body: itemResponse(item)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-checklist-items",
		Method:      http.MethodGet,
		Path:        "/checklist/mine",
		Summary:     "List active checklist items awaiting a user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Email          string `query:"email" required:"true"`
		IncompleteOnly bool   `query:"incomplete_only"`
	}) (*struct {
		Body []ChecklistItemResponse `json:"body"`
	}, error) {
		items, err := e.MyItems(ctx, input.Email, input.IncompleteOnly)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ChecklistItemResponse `json:"body"`
		}{Body: mapItems(items)}, nil
	})
}

func registerRoles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-role",
		Method:        http.MethodPost,
		Path:          "/roles",
		Summary:       "Add a user to a role group",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Actor string      `header:"X-Actor"`
		Body  AddRoleBody `json:"body"`
	}) (*struct {
		Body RoleResponse `json:"body"`
	}, error) {
		role, err := e.AddRole(ctx, input.Body.Name, input.Body.Email, domain.RoleType(input.Body.Role), actorOrDefault(input.Actor))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoleResponse `json:"body"`
		}{Body: roleResponse(role)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/roles",
		Summary:     "List role assignments",
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role"`
		UserID int64  `query:"user_id"`
	}) (*struct {
		Body []RoleResponse `json:"body"`
	}, error) {
		roles, err := e.ListRoles(ctx, repo.RoleFilters{Role: domain.RoleType(input.Role), UserID: input.UserID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RoleResponse `json:"body"`
		}{Body: mapRoles(roles)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-role",
		Method:        http.MethodDelete,
		Path:          "/roles/{role_id}",
		Summary:       "Remove a role assignment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoleID int64 `path:"role_id"`
	}) (*struct{}, error) {
		if err := e.RemoveRole(ctx, input.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEmails(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-emails",
		Method:      http.MethodGet,
		Path:        "/emails",
		Summary:     "List notification outbox",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []EmailResponse `json:"body"`
	}, error) {
		emails, err := e.Repo.ListEmails(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EmailResponse, 0, len(emails))
		for _, em := range emails {
			out = append(out, emailResponse(em))
		}
		return &struct {
			Body []EmailResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		RequestID int64 `query:"request_id"`
		Limit     int   `query:"limit"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		evts, err := e.Repo.LatestEvents(ctx, input.RequestID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
