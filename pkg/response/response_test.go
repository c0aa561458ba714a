package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestEnvelope(t *testing.T) {
	cases := []struct {
		name   string
		write  func(c *gin.Context)
		status int
		code   int
	}{
		{"Success", func(c *gin.Context) { Success(c, gin.H{"id": "x"}) }, http.StatusOK, CodeSuccess},
		{"Created", func(c *gin.Context) { Created(c, gin.H{"id": "x"}) }, http.StatusCreated, CodeSuccess},
		{"Param error", func(c *gin.Context) { ParamError(c, "bad") }, http.StatusBadRequest, CodeParamError},
		{"Not found", func(c *gin.Context) { NotFound(c, "missing") }, http.StatusNotFound, CodeNotFound},
		{"Business error", func(c *gin.Context) { BusinessError(c, CodeBalanceNotEnough, "余额不足") }, http.StatusConflict, CodeBalanceNotEnough},
		{"Server error", func(c *gin.Context) { ServerError(c, "boom") }, http.StatusInternalServerError, CodeServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tc.write(c)

			assert.Equal(t, tc.status, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}
