package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-station-sync/internal/events"
	"github.com/i474232898/weather-station-sync/internal/mapview"
	"github.com/i474232898/weather-station-sync/internal/metrics"
	"github.com/i474232898/weather-station-sync/internal/session"
	"github.com/i474232898/weather-station-sync/internal/store"
	"github.com/i474232898/weather-station-sync/internal/weather"
)

var validate = validator.New()

// KeepaliveInterval is how often an idle event stream gets a comment line.
var KeepaliveInterval = 30 * time.Second

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, sess *session.Session, hub events.Broadcaster, logger *log.Logger) {
	app.Use(metricsMiddleware)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-station-sync",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/events", streamEvents(hub, sess, logger))

	v1 := app.Group("/api/v1")

	v1.Post("/location", func(c *fiber.Ctx) error {
		point, err := parseLocation(c)
		if err != nil {
			return err
		}
		if err := sess.SelectLocation(c.UserContext(), point); err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(sess.View())
	})

	v1.Put("/window", func(c *fiber.Ctx) error {
		var req windowRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid window body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		w, err := weather.ParseTimeWindow(req.Start, req.End)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess.SetWindow(w)
		return c.JSON(sess.View())
	})

	v1.Put("/timeframe", func(c *fiber.Ctx) error {
		var req timeFrameRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid timeframe body")
		}
		if err := sess.SetTimeFrame(req.TimeFrame); err != nil {
			return err
		}
		return c.JSON(sess.View())
	})

	v1.Get("/view", func(c *fiber.Ctx) error {
		return c.JSON(sess.View())
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		element := c.Query("element")
		if element == "" {
			return fiber.NewError(fiber.StatusBadRequest, "element query parameter is required")
		}
		series := sess.Series(element)
		return jsonWithETag(c, fiber.Map{
			"series":       series,
			"suggestedMin": series.SuggestedMin(),
			"suggestedMax": series.SuggestedMax(),
		})
	})

	v1.Get("/charts", func(c *fiber.Ctx) error {
		return jsonWithETag(c, sess.Charts())
	})

	v1.Get("/markers", func(c *fiber.Ctx) error {
		return c.JSON(sess.Markers())
	})

	v1.Post("/markers/:handle/click", func(c *fiber.Ctx) error {
		propagated, err := sess.ClickStationMarker(c.Params("handle"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"propagated": propagated, "view": sess.View()})
	})

	v1.Post("/map/click", func(c *fiber.Ctx) error {
		point, err := parseLocation(c)
		if err != nil {
			return err
		}
		if err := sess.ClickMap(point); err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(sess.View())
	})

	v1.Get("/observations/:station", func(c *fiber.Ctx) error {
		records, err := sess.Observations(c.Params("station"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"stationId": c.Params("station"),
			"records":   records,
		})
	})

	v1.Get("/popup", func(c *fiber.Ctx) error {
		return c.JSON(sess.Popup())
	})

	v1.Post("/popup/click", func(c *fiber.Ctx) error {
		state, err := sess.ClickLocationMarker()
		if err != nil {
			return err
		}
		return c.JSON(state)
	})

	v1.Post("/popup/close", func(c *fiber.Ctx) error {
		return c.JSON(sess.ClosePopup())
	})

	v1.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(sess.State())
	})
}

type locationRequest struct {
	Lon *float64 `json:"lon" validate:"required,longitude"`
	Lat *float64 `json:"lat" validate:"required,latitude"`
}

func parseLocation(c *fiber.Ctx) (weather.Coordinates, error) {
	var req locationRequest
	if err := c.BodyParser(&req); err != nil {
		return weather.Coordinates{}, fiber.NewError(fiber.StatusBadRequest, "invalid location body")
	}
	if err := validate.Struct(req); err != nil {
		return weather.Coordinates{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return weather.Coordinates{Lon: *req.Lon, Lat: *req.Lat}, nil
}

type windowRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type timeFrameRequest struct {
	TimeFrame weather.TimeFrame `json:"timeFrame"`
}

// ErrorHandler maps domain errors to status codes and renders every error
// the same way.
func ErrorHandler(logger *log.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
		case errors.Is(err, weather.ErrOutOfBounds):
			code = fiber.StatusUnprocessableEntity
		case errors.Is(err, weather.ErrMissingCoordinates),
			errors.Is(err, store.ErrNotFound),
			errors.Is(err, mapview.ErrUnknownHandle):
			code = fiber.StatusNotFound
		case errors.Is(err, session.ErrInvalidTimeFrame):
			code = fiber.StatusBadRequest
		case errors.Is(err, session.ErrNoSelection):
			code = fiber.StatusConflict
		case errors.Is(err, weather.ErrMalformedForecast):
			code = fiber.StatusBadGateway
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
}

func metricsMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	path := c.Route().Path
	code := strconv.Itoa(status)
	metrics.HTTPRequestDuration.WithLabelValues(c.Method(), path, code).Observe(time.Since(start).Seconds())
	metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), path, code).Inc()
	return err
}

// jsonWithETag renders v with a content hash ETag and answers 304 when the
// client already holds it.
func jsonWithETag(c *fiber.Ctx, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// streamEvents streams broadcaster messages to one client. The stream starts
// with a connected message followed by the current state and popup.
func streamEvents(hub events.Broadcaster, sess *session.Session, logger *log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		clientID := c.Get("X-Client-Id")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		messages := hub.AddClient(clientID)
		initial := []events.Message{
			{Type: events.TypeConnected, Data: fiber.Map{"clientId": clientID}},
			{Type: events.TypeState, Data: sess.State()},
			{Type: events.TypePopup, Data: sess.Popup()},
		}

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer hub.RemoveClient(clientID, messages)

			for i, msg := range initial {
				msg.ID = int64(i + 1)
				msg.Timestamp = time.Now()
				if err := events.WriteMessage(w, msg); err != nil {
					return
				}
			}
			if err := w.Flush(); err != nil {
				return
			}

			keepalive := time.NewTicker(KeepaliveInterval)
			defer keepalive.Stop()

			for {
				select {
				case msg, ok := <-messages:
					if !ok {
						return
					}
					if err := events.WriteMessage(w, msg); err != nil {
						logger.Debug("sse write failed", "client", clientID, "err", err)
						return
					}
				case <-keepalive.C:
					if err := events.WriteKeepalive(w); err != nil {
						return
					}
				}
				if err := w.Flush(); err != nil {
					logger.Debug("sse client gone", "client", clientID)
					return
				}
			}
		}))
		return nil
	}
}
