package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

// quietPaths never get an access line; scrapers poll them constantly.
var quietPaths = map[string]bool{
	"/metrics": true,
}

// RequestLogging writes one access line per served request.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if quietPaths[req.URL.Path] {
				return next(c)
			}

			began := time.Now()
			err := next(c)

			log.Printf("%s %s %d %s remote=%s",
				req.Method, req.RequestURI,
				c.Response().Status, time.Since(began), req.RemoteAddr)
			return err
		}
	}
}
