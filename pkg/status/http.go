package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/srand/espilot/pkg/hooks"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/utils"
)

// Source of the figures published by the status endpoints.
type Source interface {
	Statistics() hooks.Statistics
	Ranges() []hooks.RangeStatus
}

func NewHttpHandler(source Source, node string, r *echo.Echo) {
	r.GET("/metrics", func(c echo.Context) error {
		stats := source.Statistics()

		metrics := fmt.Sprintln("# TYPE espilot_info gauge")
		metrics += fmt.Sprintln("# HELP espilot_info Information about the node running the pilot.")
		metrics += fmt.Sprintf("espilot_info{node=%q} 1\n", node)

		metrics += fmt.Sprintln("# TYPE espilot_state gauge")
		metrics += fmt.Sprintln("# HELP espilot_state Current state of the payload driver.")
		metrics += fmt.Sprintf("espilot_state{state=%q} %d\n", stats.State, int(stats.State))

		metrics += fmt.Sprintln("# TYPE espilot_requests_total counter")
		metrics += fmt.Sprintln("# HELP espilot_requests_total The total number of requests for event ranges.")
		metrics += fmt.Sprintf("espilot_requests_total %d\n", stats.Requests)

		metrics += fmt.Sprintln("# TYPE espilot_ranges_injected_total counter")
		metrics += fmt.Sprintln("# HELP espilot_ranges_injected_total The total number of event ranges handed to the payload.")
		metrics += fmt.Sprintf("espilot_ranges_injected_total %d\n", stats.Injected)

		metrics += fmt.Sprintln("# TYPE espilot_ranges_finished_total counter")
		metrics += fmt.Sprintln("# HELP espilot_ranges_finished_total The total number of event ranges reported as finished.")
		metrics += fmt.Sprintf("espilot_ranges_finished_total %d\n", stats.Finished)

		metrics += fmt.Sprintln("# TYPE espilot_ranges_failed_total counter")
		metrics += fmt.Sprintln("# HELP espilot_ranges_failed_total The total number of event ranges reported as failed.")
		metrics += fmt.Sprintf("espilot_ranges_failed_total %d\n", stats.Failed)

		metrics += fmt.Sprintln("# TYPE espilot_ranges_pending gauge")
		metrics += fmt.Sprintln("# HELP espilot_ranges_pending The number of event ranges currently being processed.")
		metrics += fmt.Sprintf("espilot_ranges_pending %d\n", stats.Pending)

		metrics += fmt.Sprintln("# TYPE espilot_messages_unrecognized_total counter")
		metrics += fmt.Sprintln("# HELP espilot_messages_unrecognized_total The total number of payload messages that could not be parsed.")
		metrics += fmt.Sprintf("espilot_messages_unrecognized_total %d\n", stats.Unrecognized)

		return c.String(http.StatusOK, metrics)
	})

	r.GET("/ranges", func(c echo.Context) error {
		return c.JSON(http.StatusOK, source.Ranges())
	})

	r.GET("/ranges/:id", func(c echo.Context) error {
		for _, status := range source.Ranges() {
			if status.ID == c.Param("id") {
				return c.JSON(http.StatusOK, status)
			}
		}
		return c.String(http.StatusNotFound, utils.ErrNotFound.Error())
	})
}

func NewEcho(source Source, node string) *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true
	r.Use(utils.HttpLogger)
	NewHttpHandler(source, node, r)
	return r
}

// Serves the status endpoints on uri, e.g. tcp://:8080, until ctx is
// cancelled.
func ServeHttp(ctx context.Context, source Source, node, uri string) error {
	host, err := utils.ParseHttpUrl(uri)
	if err != nil {
		return err
	}

	r := NewEcho(source, node)

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	log.Info("Listening on", host)

	if err := r.Start(host); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
