package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// BodyLimit answers 413 for bodies above limit ("512K", "1M", "1G" or a bare
// byte count), whether or not Content-Length is honest.
func BodyLimit(limit string) echo.MiddlewareFunc {
	return echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit: strconv.FormatInt(limitBytes(limit), 10),
	})
}

var limitUnits = map[byte]int64{'K': 1 << 10, 'M': 1 << 20, 'G': 1 << 30}

// limitBytes reads BODY_LIMIT. Anything unparseable means 1 MB.
func limitBytes(s string) int64 {
	const fallback = 1 << 20

	s = strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "B")
	mult := int64(1)
	if n := len(s); n > 0 {
		if m, ok := limitUnits[s[n-1]]; ok {
			mult, s = m, s[:n-1]
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v * mult
}
