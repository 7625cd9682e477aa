package utils

import (
	"fmt"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/srand/espilot/pkg/log"
)

func HttpLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		log.Tracef("%4s %s %v", c.Request().Method, c.Request().URL, c.Response().Status)
		return err
	}
}

// Parses a listen URI such as tcp://:8080 into a host:port address.
func ParseHttpUrl(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "tcp", "http":
		if u.Port() == "" {
			// Default port is 8080
			return fmt.Sprintf("%s:8080", u.Hostname()), nil
		}
		return u.Host, nil

	default:
		return "", fmt.Errorf("%w: unsupported protocol %q", ErrParse, u.Scheme)
	}
}
