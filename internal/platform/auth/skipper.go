package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication and organisation resolution.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path()) || IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
