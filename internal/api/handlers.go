package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/pulse/internal/dashboard"
	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/suggest"
)

// VisibleSuggestions is the size of the top suggestion view.
const VisibleSuggestions = 3

// ListProjects handles GET /api/projects.
func (s *Server) ListProjects(c *fiber.Ctx) error {
	projects, err := s.deps.Repo.ListProjects(c.UserContext())
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"projects": projects, "total": len(projects)})
}

// UpsertProject handles POST /api/projects.
func (s *Server) UpsertProject(c *fiber.Ctx) error {
	var req projectRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	p, err := s.deps.Repo.UpsertProject(c.UserContext(), req.model())
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// GetProjectDetail handles GET /api/projects/:id. ?live=true attaches live device vitals.
func (s *Server) GetProjectDetail(c *fiber.Ctx) error {
	opts := dashboard.Options{LiveVitals: c.QueryBool("live", false)}
	d, err := s.deps.Dashboard.ProjectDetail(c.UserContext(), c.Params("id"), opts)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(d)
}

// UpdateProject handles PATCH /api/projects/:id.
func (s *Server) UpdateProject(c *fiber.Ctx) error {
	var req projectPatchRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	p, err := s.deps.Repo.UpdateProject(c.UserContext(), c.Params("id"), req.model())
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(p)
}

// GetMetrics handles GET /api/projects/:id/metrics?month=YYYY-MM.
func (s *Server) GetMetrics(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if err := s.requireProject(c, id); err != nil {
		return s.errorResponse(c, err)
	}

	var month models.Month
	if raw := c.Query("month"); raw != "" {
		m, err := models.ParseMonth(raw)
		if err != nil {
			return s.errorResponse(c, err)
		}
		month = m
	}
	ms, err := s.deps.Repo.GetProjectMetrics(ctx, id, month)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"projectId": id, "metrics": ms})
}

// UpsertMetrics handles POST /api/projects/:id/metrics.
func (s *Server) UpsertMetrics(c *fiber.Ctx) error {
	id := c.Params("id")
	var req metricsRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if err := s.requireProject(c, id); err != nil {
		return s.errorResponse(c, err)
	}
	m, err := s.deps.Repo.UpsertProjectMetrics(c.UserContext(), req.model(id))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(m)
}

// Portfolio handles GET /api/portfolio.
func (s *Server) Portfolio(c *fiber.Ctx) error {
	view, err := s.deps.Dashboard.Portfolio(c.UserContext())
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(view)
}

// Accessibility handles GET /api/accessibility/:id.
func (s *Server) Accessibility(c *fiber.Ctx) error {
	view, err := s.deps.Dashboard.Accessibility(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(view)
}

// GetSuggestions handles GET /api/suggestions/:id. It tops up the list first.
func (s *Server) GetSuggestions(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.requireProject(c, id); err != nil {
		return s.errorResponse(c, err)
	}
	all, err := s.deps.Suggestions.Generate(c.UserContext(), id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	if all == nil {
		all = []models.Suggestion{}
	}
	return c.JSON(fiber.Map{
		"projectId":   id,
		"suggestions": suggest.Visible(all, VisibleSuggestions),
		"all":         all,
	})
}

// UpdateSuggestion handles POST /api/suggestions/:id.
func (s *Server) UpdateSuggestion(c *fiber.Ctx) error {
	var req suggestionUpdateRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := s.deps.Suggestions.UpdateStatus(c.UserContext(), c.Params("id"),
		req.SuggestionID, models.SuggestionStatus(req.Status), req.CompletedText)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(res)
}

// JiraRefresh handles POST /api/webhooks/jira-refresh.
func (s *Server) JiraRefresh(c *fiber.Ctx) error {
	var req jiraRefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body: "+err.Error())
	}
	if req.ProjectID == "" {
		return badRequest(c, "missing_project", "projectId is required")
	}
	if s.deps.Refresher == nil {
		return s.errorResponse(c, perrors.ErrUnavailable)
	}
	res, err := s.deps.Refresher.RefreshFlow(c.UserContext(), req.ProjectID, models.Month(req.Month))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "result": res})
}

// CacheRefresh handles POST /api/webhooks/refresh.
func (s *Server) CacheRefresh(c *fiber.Ctx) error {
	var req cacheRefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body: "+err.Error())
	}
	if req.ProjectID == "" && !req.All {
		return badRequest(c, "missing_target", "projectId or all is required")
	}
	if s.deps.Cache == nil {
		return s.errorResponse(c, perrors.ErrUnavailable)
	}

	ctx := c.UserContext()
	if req.All {
		if err := s.deps.Cache.InvalidateAll(ctx); err != nil {
			return s.errorResponse(c, err)
		}
		s.logger.Info().Msg("performance cache revalidated")
		return c.JSON(fiber.Map{"revalidated": true, "scope": "all"})
	}
	if err := s.deps.Cache.Invalidate(ctx, req.ProjectID); err != nil {
		return s.errorResponse(c, err)
	}
	s.logger.Info().Str("project_id", req.ProjectID).Msg("performance cache revalidated")
	return c.JSON(fiber.Map{"revalidated": true, "scope": req.ProjectID})
}

func (s *Server) requireProject(c *fiber.Ctx, id string) error {
	p, err := s.deps.Repo.GetProject(c.UserContext(), id)
	if err != nil {
		return err
	}
	if p == nil {
		return perrors.NotFound("project", id)
	}
	return nil
}
