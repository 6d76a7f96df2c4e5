package httputil

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Order listing page bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

var (
	errInvalidOffset = errors.New("invalid offset parameter: must be a non-negative integer")
	errInvalidLimit  = errors.New("invalid limit parameter: must be between 1 and " + strconv.Itoa(MaxLimit))
)

// ParsePagination reads the offset and limit query parameters. Missing values fall
// back to 0 and DefaultLimit. On error both results are zero.
func ParsePagination(c *gin.Context) (offset, limit int, err error) {
	offset, ok := queryInt(c, "offset", 0)
	if !ok || offset < 0 {
		return 0, 0, errInvalidOffset
	}

	limit, ok = queryInt(c, "limit", DefaultLimit)
	if !ok || limit < 1 || limit > MaxLimit {
		return 0, 0, errInvalidLimit
	}

	return offset, limit, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
