package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	subsvc "github.com/lintasdata/enforcer/internal/app/service/subscription"
	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/response"
	"github.com/lintasdata/enforcer/pkg/types"
)

// RegisterSubscriptionRoutes wires the billing-layer subscription actions.
// Degraded network outcomes come back as 200 with a degraded code: the
// billing transition did commit and the caller must not retry it.
func RegisterSubscriptionRoutes(r gin.IRouter, svc *subsvc.Service) {
	subs := r.Group("/subscriptions")

	subs.POST("/activate", func(c *gin.Context) {
		var req subsvc.ActivateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Activate(c.Request.Context(), &req)
		if err != nil {
			writeSubscriptionError(c, err)
			return
		}
		writeActivationResult(c, res)
	})

	subs.POST("/:id/deactivate", transitionHandler(svc, func(c *gin.Context, id uint) (*subsvc.ActivationResult, error) {
		return svc.Deactivate(c.Request.Context(), id, types.DeactivationReasonCancelled)
	}))
	subs.POST("/:id/pause", transitionHandler(svc, func(c *gin.Context, id uint) (*subsvc.ActivationResult, error) {
		return svc.Pause(c.Request.Context(), id)
	}))
	subs.POST("/:id/resume", transitionHandler(svc, func(c *gin.Context, id uint) (*subsvc.ActivationResult, error) {
		return svc.Resume(c.Request.Context(), id)
	}))
	subs.POST("/:id/deplete", transitionHandler(svc, func(c *gin.Context, id uint) (*subsvc.ActivationResult, error) {
		return svc.Deplete(c.Request.Context(), id)
	}))

	customers := r.Group("/customers")
	customers.GET("/:id/subscription", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		sub, err := svc.ActiveSubscription(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
			return
		}
		if sub == nil {
			c.JSON(http.StatusNotFound, response.ErrorMsg(response.APIResponseCodeNotFound, "no active subscription"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	})
	customers.GET("/:id/subscriptions", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		history, err := svc.History(c.Request.Context(), id, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(history, func(s models.Subscription, _ int) *SubscriptionItem { return toSubscriptionItem(&s) })
		c.JSON(http.StatusOK, response.OKT(items))
	})
}

// SubscriptionItem is the list representation of a subscription row.
type SubscriptionItem struct {
	ID                 uint                     `json:"id"`
	Status             types.SubscriptionStatus `json:"status"`
	PackageName        string                   `json:"package_name,omitempty"`
	DownloadMbps       int                      `json:"download_mbps"`
	UploadMbps         int                      `json:"upload_mbps"`
	ActivationDate     time.Time                `json:"activation_date"`
	ExpiryDate         time.Time                `json:"expiry_date"`
	DeactivationReason types.DeactivationReason `json:"deactivation_reason,omitempty"`
}

func toSubscriptionItem(s *models.Subscription) *SubscriptionItem {
	it := &SubscriptionItem{
		ID:                 s.ID,
		Status:             s.Status,
		DownloadMbps:       s.DownloadMbps(),
		UploadMbps:         s.UploadMbps(),
		ActivationDate:     s.ActivationDate,
		ExpiryDate:         s.ExpiryDate,
		DeactivationReason: s.DeactivationReason,
	}
	if s.Package != nil {
		it.PackageName = s.Package.Name
	}
	return it
}

func transitionHandler(svc *subsvc.Service, fn func(*gin.Context, uint) (*subsvc.ActivationResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		res, err := fn(c, id)
		if err != nil {
			writeSubscriptionError(c, err)
			return
		}
		writeActivationResult(c, res)
	}
}

func writeActivationResult(c *gin.Context, res *subsvc.ActivationResult) {
	if !res.Network.Success {
		c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeDegraded, res))
		return
	}
	c.JSON(http.StatusOK, response.OKT(res))
}

func writeSubscriptionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, subsvc.ErrCustomerNotFound), errors.Is(err, subsvc.ErrPackageNotFound):
		c.JSON(http.StatusNotFound, response.ErrorMsg(response.APIResponseCodeNotFound, err.Error()))
	case errors.Is(err, subsvc.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorMsg(response.APIResponseCodeError, err.Error()))
	}
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, "invalid id"))
		return 0, false
	}
	return uint(id), true
}
