package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/service"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAccess), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotInitialized),
		errors.Is(err, service.ErrStoreUnavailable),
		errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func resultStatus(res domain.PersistenceResult) int {
	if res.Persisted() {
		return http.StatusOK
	}
	return errorStatus(res.Err)
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// intParam parses a positive integer path parameter, writing a 400 when it is not one.
func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
