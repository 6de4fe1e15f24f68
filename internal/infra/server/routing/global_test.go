package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func Test_RequestId(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestId())
	var seen string
	engine.GET("/", func(c *gin.Context) {
		seen = c.GetHeader(RequestIdHeader)
		c.Status(http.StatusOK)
	})

	resp := performRequest(engine, http.MethodGet, "/", nil, nil)
	generated := resp.Header().Get(RequestIdHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, seen)

	resp = performRequest(engine, http.MethodGet, "/", nil, http.Header{RequestIdHeader: []string{"abc"}})
	assert.Equal(t, "abc", resp.Header().Get(RequestIdHeader))
	assert.Equal(t, "abc", seen)
}

func Test_Consistent(t *testing.T) {
	for raw, expected := range map[string]bool{"": false, "true": true, "false": false, "1": true} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request, _ = http.NewRequest(http.MethodGet, "/?consistent="+raw, nil)
		consistent, apiErr := Consistent(c)
		assert.Nil(t, apiErr)
		assert.Equal(t, expected, consistent, raw)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest(http.MethodGet, "/?consistent=maybe", nil)
	_, apiErr := Consistent(c)
	if assert.NotNil(t, apiErr) {
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	}
}
