package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lizzy/internal/db"
	"lizzy/internal/domain"
	"lizzy/internal/engine"
	"lizzy/internal/llm"
	"lizzy/internal/repo"
)

const apiVersion = "0.3.0"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"coverage_missing"`
	Message string         `json:"message" example:"2 scene(s) lack brainstorm coverage"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var errWriteBusy = errors.New("a write run is already in progress")

// countTokens may load encodings over the network; tests swap it out.
var countTokens = llm.CountTokens

// New returns an HTTP handler exposing the project dashboard API.
func New(cfg Config) (http.Handler, error) {
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
	// Override Huma errors to use the envelope.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, log))
	hcfg := huma.DefaultConfig("Lizzy API", apiVersion)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	router.Handle("/metrics", promhttp.Handler())
	registerDocs(router, basePath)
	registerHealth(group)
	registerProject(group, cfg.Engine)
	running := &sync.Mutex{}
	registerStory(group, cfg.Engine)
	registerStoryEdits(group, cfg.Engine, running)
	registerScenes(group, cfg.Engine)
	registerRuns(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerWrite(group, cfg.Engine, cfg.Auth, log, running)
	registerOpenAPI(router, api, basePath, cfg.Auth)

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
	var ce *engine.CoverageError
	if errors.As(err, &ce) {
		missing := make([]string, len(ce.Missing))
		for i, k := range ce.Missing {
			missing[i] = fmt.Sprintf("%d:%d", k.Act, k.Scene)
		}
		return newAPIError(http.StatusUnprocessableEntity, "coverage_missing", err.Error(), map[string]any{"table": ce.Table, "missing": missing})
	}
	if errors.Is(err, engine.ErrNoScenes) {
		return newAPIError(http.StatusUnprocessableEntity, "no_scenes", err.Error(), nil)
	}
	if errors.Is(err, errWriteBusy) {
		return newAPIError(http.StatusConflict, "write_in_progress", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not in the outline"), strings.Contains(lowered, "no such table"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "must be positive"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "unavailable"
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

func registerOpenAPI(r chi.Router, api huma.API, basePath string, authCfg AuthConfig) {
	var doc []byte
	var once sync.Once
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if authCfg.Enabled() {
				applyAuthSecurity(oas, basePath)
			}
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	var errSchema *huma.Schema
	if oas.Components != nil && oas.Components.Schemas != nil {
		errSchema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
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
	healthPath := path.Join("/", basePath, "health")
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
    <title>Lizzy API Docs</title>
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

func registerProject(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/project",
		Summary:     "Project metadata, counts and writer settings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		meta, err := e.Repo.Metadata(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.Counts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(e.Project, meta, counts, e.Config)}, nil
	})
}

func registerStory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-characters",
		Method:      http.MethodGet,
		Path:        "/characters",
		Summary:     "List characters",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CharactersResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListCharacters(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CharactersResponse `json:"body"`
		}{Body: CharactersResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-outline",
		Method:      http.MethodGet,
		Path:        "/outline",
		Summary:     "List outline scenes in story order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body OutlineResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListScenes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OutlineResponse `json:"body"`
		}{Body: OutlineResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-coverage",
		Method:      http.MethodGet,
		Path:        "/coverage",
		Summary:     "Brainstorm coverage of the outline",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.CoverageReport `json:"body"`
	}, error) {
		rep, err := e.Coverage(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		rep.Scenes = nonNilSlice(rep.Scenes)
		return &struct {
			Body engine.CoverageReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-prompt",
		Method:      http.MethodGet,
		Path:        "/prompt/{act}/{scene}",
		Summary:     "Assemble the prompt for one scene without generating",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Act   int `path:"act" minimum:"1"`
		Scene int `path:"scene" minimum:"1"`
	}) (*struct {
		Body PromptResponse `json:"body"`
	}, error) {
		prompt, err := e.PromptPreview(ctx, domain.SceneKey{Act: input.Act, Scene: input.Scene})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PromptResponse `json:"body"`
		}{Body: PromptResponse{
			Act:    input.Act,
			Scene:  input.Scene,
			Prompt: prompt,
			Tokens: countTokens(e.Config.Generation.Model, prompt),
		}}, nil
	})
}

// registerStoryEdits exposes character and outline edits. Each change is
// logged so webhook subscribers see dashboard edits. Edits share the write
// lock so the story cannot change under a running write.
func registerStoryEdits(api huma.API, e engine.Engine, running *sync.Mutex) {
	editor := func(ctx context.Context) (engine.Engine, func(), error) {
		if err := requireRole(ctx, RoleWriter); err != nil {
			return e, nil, err
		}
		if !running.TryLock() {
			return e, nil, handleError(errWriteBusy)
		}
		ed := e
		ed.Actor = actorFromContext(ctx, e.Actor)
		return ed, running.Unlock, nil
	}

	huma.Register(api, huma.Operation{
		OperationID:   "save-character",
		Method:        http.MethodPost,
		Path:          "/characters",
		Summary:       "Create or replace a character",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body domain.Character `json:"body"`
	}) (*struct {
		Body domain.Character `json:"body"`
	}, error) {
		ed, unlock, err := editor(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
		c := input.Body
		c.Name = strings.TrimSpace(c.Name)
		if err := ed.SaveCharacter(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Character `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-character",
		Method:        http.MethodDelete,
		Path:          "/characters/{name}",
		Summary:       "Delete a character",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct{}, error) {
		ed, unlock, err := editor(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
		if err := ed.DeleteCharacter(ctx, input.Name); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-scene",
		Method:      http.MethodPut,
		Path:        "/outline/{act}/{scene}",
		Summary:     "Create or replace an outline scene",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Act   int          `path:"act" minimum:"1"`
		Scene int          `path:"scene" minimum:"1"`
		Body  SceneRequest `json:"body"`
	}) (*struct {
		Body domain.SceneOutline `json:"body"`
	}, error) {
		ed, unlock, err := editor(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
		s := input.Body.outline(domain.SceneKey{Act: input.Act, Scene: input.Scene})
		if err := ed.SaveScene(ctx, s); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SceneOutline `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-scene",
		Method:        http.MethodDelete,
		Path:          "/outline/{act}/{scene}",
		Summary:       "Delete an outline scene",
		Description:   "Drafts and finalized text already written for the scene are kept.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Act   int `path:"act" minimum:"1"`
		Scene int `path:"scene" minimum:"1"`
	}) (*struct{}, error) {
		ed, unlock, err := editor(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
		if err := ed.DeleteScene(ctx, domain.SceneKey{Act: input.Act, Scene: input.Scene}); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerScenes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/drafts",
		Summary:     "List scene drafts in story order",
	}, func(ctx context.Context, input *struct {
		Act   int `query:"act" minimum:"0"`
		Scene int `query:"scene" minimum:"0"`
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body DraftsResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListDrafts(ctx, repo.DraftFilters{Act: input.Act, Scene: input.Scene, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DraftsResponse `json:"body"`
		}{Body: DraftsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-finals",
		Method:      http.MethodGet,
		Path:        "/finals",
		Summary:     "List finalized scenes in story order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body FinalsResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListFinals(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FinalsResponse `json:"body"`
		}{Body: FinalsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-final",
		Method:      http.MethodGet,
		Path:        "/finals/{act}/{scene}",
		Summary:     "Get one finalized scene",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Act   int `path:"act" minimum:"1"`
		Scene int `path:"scene" minimum:"1"`
	}) (*struct {
		Body domain.FinalizedScene `json:"body"`
	}, error) {
		f, err := e.Repo.GetFinal(ctx, domain.SceneKey{Act: input.Act, Scene: input.Scene})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FinalizedScene `json:"body"`
		}{Body: f}, nil
	})
}

func registerRuns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List write run tables, newest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RunTablesResponse `json:"body"`
	}, error) {
		tables, err := e.Repo.VersionedTables(ctx, repo.WriteRunPrefix)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunTablesResponse `json:"body"`
		}{Body: RunTablesResponse{Items: runTables(tables)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{table}",
		Summary:     "List the prompt/output log of one write run",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Table string `path:"table" example:"write_runs_v1"`
	}) (*struct {
		Body RunRecordsResponse `json:"body"`
	}, error) {
		if !strings.HasPrefix(input.Table, repo.WriteRunPrefix+"_v") {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid write run table", map[string]any{"table": input.Table})
		}
		items, err := e.Repo.ListWriteRuns(ctx, input.Table)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunRecordsResponse `json:"body"`
		}{Body: RunRecordsResponse{Table: input.Table, Items: nonNilSlice(items)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor" minimum:"0"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerWrite(api huma.API, e engine.Engine, auth AuthConfig, log *zap.Logger, running *sync.Mutex) {
	exportRoots := []string{db.ProjectDir(e.Workspace, e.Project), e.ExportDir("")}

	huma.Register(api, huma.Operation{
		OperationID: "run-write",
		Method:      http.MethodPost,
		Path:        "/write",
		Summary:     "Run the write pipeline synchronously",
		Description: "Writes every outlined scene (or the listed ones) in story order, then exports unless skip_export is set.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body WriteRequest `json:"body"`
	}) (*struct {
		Body engine.Summary `json:"body"`
	}, error) {
		if err := requireRole(ctx, RoleWriter); err != nil {
			return nil, err
		}
		if err := checkExportDir(auth, exportRoots, input.Body.ExportDir); err != nil {
			return nil, err
		}
		if e.Generator == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "generator_unavailable", "no generation backend configured", nil)
		}
		keys := make([]domain.SceneKey, 0, len(input.Body.Scenes))
		for _, s := range input.Body.Scenes {
			k, err := domain.ParseSceneKey(s)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"scene": s})
			}
			keys = append(keys, k)
		}
		if !running.TryLock() {
			return nil, handleError(errWriteBusy)
		}
		defer running.Unlock()

		run := e
		run.Actor = actorFromContext(ctx, e.Actor)
		sum, err := run.Run(ctx, engine.RunOptions{Scenes: keys, SkipExport: input.Body.SkipExport, ExportDir: input.Body.ExportDir})
		if err != nil {
			log.Warn("write run via api failed", zap.String("actor", run.Actor), zap.Error(err))
			return nil, handleError(err)
		}
		sum.Scenes = nonNilSlice(sum.Scenes)
		return &struct {
			Body engine.Summary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-export",
		Method:      http.MethodPost,
		Path:        "/export",
		Summary:     "Export finalized scenes as a manuscript",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ExportRequest `json:"body"`
	}) (*struct {
		Body engine.ExportResult `json:"body"`
	}, error) {
		if err := requireRole(ctx, RoleWriter); err != nil {
			return nil, err
		}
		if err := checkExportDir(auth, exportRoots, input.Body.Dir); err != nil {
			return nil, err
		}
		res, err := e.Export(ctx, input.Body.Dir)
		if err != nil {
			return nil, handleError(err)
		}
		res.Files = nonNilSlice(res.Files)
		return &struct {
			Body engine.ExportResult `json:"body"`
		}{Body: res}, nil
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
