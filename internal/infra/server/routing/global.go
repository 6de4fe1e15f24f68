package routing

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lloydmeta/settle/internal/api/models/common"
)

var notFoundErr = common.ApiError{
	StatusCode: http.StatusNotFound,
	Body: common.Body{
		Message: "No such route.",
	},
}

var noMethodErr = common.ApiError{
	StatusCode: http.StatusMethodNotAllowed,
	Body: common.Body{
		Message: "No such route.",
	},
}

var consistentQueryKey = "consistent"

// RequestIdHeader carries the id of a request, echoed back on the response
const RequestIdHeader = "X-Request-Id"

// RequestId keeps a caller-supplied request id, or generates one
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIdHeader)
		if id == "" {
			id = uuid.New().String()
			c.Request.Header.Set(RequestIdHeader, id)
		}
		c.Header(RequestIdHeader, id)
		c.Next()
	}
}

// NewTopLevelRoutesGroup returns the group every API route hangs off, with responses gzipped
func NewTopLevelRoutesGroup(ginEngine *gin.Engine) *gin.RouterGroup {
	return ginEngine.Group("", gzip.Gzip(gzip.DefaultCompression))
}

func NoRoute(c *gin.Context) {
	c.JSON(notFoundErr.StatusCode, notFoundErr.Body)
}

func NoMethod(c *gin.Context) {
	c.JSON(noMethodErr.StatusCode, noMethodErr.Body)
}

func HandleApiErr(c *gin.Context, apiError *common.ApiError) {
	c.JSON(apiError.StatusCode, apiError.Body)
}

func HandleJsonSerdesErr(c *gin.Context, err error) {
	errResp := common.ApiError{
		StatusCode: http.StatusBadRequest,
		Body: common.Body{
			Message: err.Error(),
		},
	}
	HandleApiErr(c, &errResp)
}

// Consistent reads the "consistent" query param; absent means false
func Consistent(c *gin.Context) (bool, *common.ApiError) {
	raw := c.Query(consistentQueryKey)
	if raw == "" {
		return false, nil
	}
	consistent, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &common.ApiError{
			StatusCode: http.StatusBadRequest,
			Body: common.Body{
				Message: "consistent must be a boolean",
			},
		}
	}
	return consistent, nil
}
