package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lintasdata/enforcer/internal/app/service/scheduler"
	"github.com/lintasdata/enforcer/pkg/response"
)

// RegisterSchedulerRoutes exposes a manual tick trigger for operators.
// A tick already in flight yields a skipped result, not an error.
func RegisterSchedulerRoutes(r gin.IRouter, d *scheduler.Driver) {
	r.POST("/scheduler/tick", func(c *gin.Context) {
		res, err := d.RunOnce(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	})
}
