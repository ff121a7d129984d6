package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	migsvc "github.com/lintasdata/enforcer/internal/app/service/migration"
	"github.com/lintasdata/enforcer/pkg/response"
)

type migrateRequest struct {
	AdminID uint `json:"admin_id"`
}

// RegisterMigrationRoutes wires the billing-mode transitions. The prepaid
// response may carry a clear portal PIN; it is shown once and cannot be
// fetched again.
func RegisterMigrationRoutes(r gin.IRouter, svc *migsvc.Service) {
	customers := r.Group("/customers")

	customers.POST("/:id/migrate-to-prepaid", migrateHandler(svc.ToPrepaid))
	customers.POST("/:id/migrate-to-postpaid", migrateHandler(svc.ToPostpaid))

	customers.GET("/:id/migrations", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		history, err := svc.History(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(history))
	})
}

func migrateHandler(fn func(ctx context.Context, customerID, adminID uint) (*migsvc.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req migrateRequest
		_ = c.ShouldBindJSON(&req)

		res, err := fn(c.Request.Context(), id, req.AdminID)
		if err != nil {
			if errors.Is(err, migsvc.ErrCustomerNotFound) {
				c.JSON(http.StatusNotFound, response.ErrorMsg(response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
			return
		}
		if !res.Network.Success {
			c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeDegraded, res))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}
