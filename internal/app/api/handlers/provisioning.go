package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lintasdata/enforcer/internal/app/service/provisioning"
	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/internal/platform/settings"
	"github.com/lintasdata/enforcer/pkg/response"
)

// RegisterProvisioningRoutes wires the one-click router setup endpoints.
func RegisterProvisioningRoutes(r gin.IRouter, svc *provisioning.Service) {
	grp := r.Group("/provisioning")
	grp.POST("/setup", func(c *gin.Context) {
		res, err := svc.Setup(c.Request.Context())
		if err != nil {
			if errors.Is(err, provisioning.ErrPartialProvisioning) {
				c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, gin.H{
					"detail": err.Error(),
					"counts": res,
				}))
				return
			}
			writeRouterError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	})

	grp.GET("/status", func(c *gin.Context) {
		res, err := svc.Status(c.Request.Context())
		if err != nil {
			writeRouterError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	})

	grp.POST("/reset", func(c *gin.Context) {
		res, err := svc.Reset(c.Request.Context())
		if err != nil {
			writeRouterError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	})

	grp.GET("/test-connection", func(c *gin.Context) {
		identity, err := svc.TestConnection(c.Request.Context())
		if err != nil {
			writeRouterError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(gin.H{"identity": identity}))
	})
}

func writeRouterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, settings.ErrNotConfigured):
		c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
	case errors.Is(err, router.ErrDeviceUnreachable):
		c.JSON(http.StatusBadGateway, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
	}
}
