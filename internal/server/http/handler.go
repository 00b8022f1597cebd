package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"datacache/internal/fetcher"
)

// DataSource is the cached resource served over HTTP.
type DataSource interface {
	Load(ctx context.Context) (fetcher.Result[json.RawMessage], error)
	Snapshot() fetcher.Snapshot[json.RawMessage]
	URL() string
	TTL() time.Duration
}

type statusResponse struct {
	State      string     `json:"state"`
	URL        string     `json:"url"`
	TTL        string     `json:"ttl"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	AgeSeconds int64      `json:"age_seconds,omitempty"`
	AgeHuman   string     `json:"age_human,omitempty"`
}

// dataHandler serves the cached payload; 503 only when nothing was ever fetched.
func dataHandler(src DataSource, logger log.Interface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logReq := reqLogger(logger, c)

		res, err := src.Load(c.UserContext())
		if err != nil {
			logReq.WithError(err).Error("data unavailable")
			if errors.Is(err, fetcher.ErrNoDataAvailable) {
				var fe *fetcher.FetchError
				if errors.As(err, &fe) {
					c.Set("X-Upstream-Status", strconv.Itoa(fe.HTTPStatus()))
				}
				return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": fetcher.ErrNoDataAvailable.Error()})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		logReq.WithField("cache", res.Source.String()).Debug("data served")
		c.Set("X-Cache", res.Source.String())
		c.Set("X-Fetched-At", res.FetchedAt.UTC().Format(time.RFC3339))
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(http.StatusOK).Send(res.Value)
	}
}

// statusHandler reports the cache state without touching the network.
func statusHandler(src DataSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := src.Snapshot()
		out := statusResponse{
			State: s.State.String(),
			URL:   src.URL(),
			TTL:   src.TTL().String(),
		}
		if s.Present {
			fetchedAt := s.FetchedAt.UTC()
			out.FetchedAt = &fetchedAt
			out.AgeSeconds = int64(s.Age / time.Second)
			out.AgeHuman = humanize.RelTime(s.FetchedAt, s.FetchedAt.Add(s.Age), "ago", "from now")
		}
		return c.JSON(out)
	}
}
