package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-search/internal/weather"
)

var validate = validator.New()

// keepAliveInterval bounds how long a dead stream client goes unnoticed.
const keepAliveInterval = 15 * time.Second

// Searcher is the part of weather.Service the HTTP layer drives.
type Searcher interface {
	IssueCitySearch(name string) bool
	IssueLocationSearch() bool
	IssueRefresh()
	IssueRestoreLast()
	Current() weather.Outcome
	Outcomes(ctx context.Context) <-chan weather.Outcome
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Searcher) {
	v1 := app.Group("/api/v1")

	search := v1.Group("/search")

	search.Post("/city", func(c *fiber.Ctx) error {
		var req citySearchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		req.Name = strings.TrimSpace(req.Name)
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "city name must not be blank")
		}

		if !service.IssueCitySearch(req.Name) {
			return fiber.NewError(fiber.StatusBadRequest, "city name must not be blank")
		}
		return accepted(c, service)
	})

	search.Post("/location", func(c *fiber.Ctx) error {
		if !service.IssueLocationSearch() {
			return fiber.NewError(fiber.StatusServiceUnavailable, "location search is not available")
		}
		return accepted(c, service)
	})

	search.Post("/refresh", func(c *fiber.Ctx) error {
		service.IssueRefresh()
		return accepted(c, service)
	})

	search.Post("/restore", func(c *fiber.Ctx) error {
		service.IssueRestoreLast()
		return accepted(c, service)
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		return c.JSON(service.Current())
	})

	v1.Get("/weather/stream", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		ctx, cancel := context.WithCancel(context.Background())
		updates := service.Outcomes(ctx)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cancel()
			streamOutcomes(w, updates)
		}))
		return nil
	})
}

type citySearchRequest struct {
	Name string `json:"name" validate:"required"`
}

func accepted(c *fiber.Ctx, service Searcher) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted": true,
		"current":  service.Current(),
	})
}

// streamOutcomes writes each outcome as a server-sent event until updates closes
// or the client goes away.
func streamOutcomes(w *bufio.Writer, updates <-chan weather.Outcome) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case o, ok := <-updates:
			if !ok {
				return
			}
			raw, err := json.Marshal(o)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: outcome\ndata: %s\n\n", raw)
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
