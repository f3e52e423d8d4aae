package httphelper

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

func BindJSON[T any](ctx *gin.Context) (T, bool) { //nolint:ireturn
	var value T
	if err := ctx.ShouldBindJSON(&value); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			SetError(ctx, NewAPIError(http.StatusBadRequest, validationErrs))
		} else {
			SetError(ctx, NewAPIError(http.StatusBadRequest, ErrBadRequest))
		}

		return value, false
	}

	return value, true
}

// Decoder is a package global because it caches
// meta-data about structs, and an instance can be shared safely.
var Decoder = newDecoder() //nolint:gochecknoglobals

func newDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return decoder
}

// BindQuery decodes the url query into target and validates it with the same engine gin uses for
// request bodies.
func BindQuery[T any](ctx *gin.Context) (T, bool) { //nolint:ireturn
	var value T
	if errBind := Decoder.Decode(&value, ctx.Request.URL.Query()); errBind != nil {
		SetError(ctx, NewAPIErrorf(http.StatusBadRequest, errors.Join(errBind, ErrBadRequest),
			"Could not decode query params"))

		return value, false
	}

	if errValid := binding.Validator.ValidateStruct(&value); errValid != nil {
		SetError(ctx, NewAPIErrorf(http.StatusBadRequest, errors.Join(errValid, ErrInvalidParameter),
			"Invalid query params"))

		return value, false
	}

	return value, true
}

func GetInt64Param(ctx *gin.Context, key string) (int64, bool) {
	valueStr := ctx.Param(key)
	if valueStr == "" {
		SetError(ctx, NewAPIErrorf(http.StatusBadRequest, ErrParamKeyMissing,
			"Cannot read value for param: %s", key))

		return 0, false
	}

	value, valueErr := strconv.ParseInt(valueStr, 10, 64)
	if valueErr != nil {
		SetError(ctx, NewAPIErrorf(http.StatusBadRequest, errors.Join(valueErr, ErrParamParse),
			"Must be a valid integer: %s", key))

		return 0, false
	}

	if value <= 0 {
		SetError(ctx, NewAPIErrorf(http.StatusBadRequest, ErrParamInvalid,
			"Integer value cannot be negative: %s", key))

		return 0, false
	}

	return value, true
}

type ResultsCount struct {
	Count int64 `json:"count"`
}

type ResultID struct {
	ID int64 `json:"id"`
}

func NewServer(listenAddr string, handler http.Handler) *http.Server {
	httpServer := &http.Server{
		Addr:           listenAddr,
		Handler:        handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return httpServer
}
