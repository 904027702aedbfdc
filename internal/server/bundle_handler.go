package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/bundlesize/internal/bundler"
	"github.com/fluxbase-eu/bundlesize/internal/middleware"
)

// BundleRequest is the body of POST /api/v1/bundle
type BundleRequest struct {
	Source        string                `json:"source"`
	TerserOptions bundler.MinifyOptions `json:"terserOptions,omitempty"`
	// Details adds the per-module size breakdown to the response
	Details bool `json:"details,omitempty"`
}

// BundleResponse is a finished bundle with its size
type BundleResponse struct {
	Input    string            `json:"input"`
	Output   []bundler.Chunk   `json:"output"`
	Size     int               `json:"size"`
	Analysis *bundler.Analysis `json:"analysis,omitempty"`
}

// handleBundle bundles synchronously. Unlike the WebSocket protocol, build
// errors are returned to the caller.
func (s *Server) handleBundle(c *fiber.Ctx) error {
	var req BundleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Source) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source is required",
		})
	}

	requestID, _ := c.Locals("requestid").(string)
	result, err := s.pipeline.Bundle(c.UserContext(), bundler.Request{
		ID:     requestID,
		Source: req.Source,
		Minify: req.TerserOptions,
	})
	if err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Msg("Bundle request failed")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":    bundleErrorMessage(err),
			"details":  buildMessages(err),
			"trace_id": middleware.GetTraceID(c),
		})
	}

	resp := BundleResponse{
		Input:  result.Input,
		Output: result.Chunks,
		Size:   result.Size(),
	}
	if req.Details {
		resp.Analysis = bundler.Analyze(result, s.config.Registry.BaseURL())
	}
	return c.JSON(resp)
}

func bundleErrorMessage(err error) string {
	if errors.Is(err, bundler.ErrMinify) {
		return bundler.ErrMinify.Error()
	}
	return bundler.ErrBundle.Error()
}

func buildMessages(err error) []string {
	var buildErr *bundler.BuildError
	if errors.As(err, &buildErr) {
		return buildErr.Messages
	}
	return []string{err.Error()}
}
