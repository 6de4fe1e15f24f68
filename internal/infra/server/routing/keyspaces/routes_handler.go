package keyspaces

import (
	"net/http"

	"github.com/gin-gonic/gin"

	reconcileController "github.com/lloydmeta/settle/internal/api/controllers/reconcile"
	recordController "github.com/lloydmeta/settle/internal/api/controllers/record"
	"github.com/lloydmeta/settle/internal/api/models/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/infra/server/routing"
)

var subPath = "keyspaces"

var keyspaceKey = "keyspace"
var aggregationKeyKey = "aggregation_key"
var recordKeyKey = "key"

type RoutesHandler struct {
	ReconcileController reconcileController.Controller
	RecordController    recordController.Controller
}

func (h *RoutesHandler) RegisterRoutes(routerGroup *gin.RouterGroup) {
	subGroup := routerGroup.Group(subPath + "/:" + keyspaceKey)
	subGroup.PUT("/aggregations/:"+aggregationKeyKey, h.reconcile)
	subGroup.GET("/aggregations/:"+aggregationKeyKey, h.listAggregation)
	subGroup.GET("/records/:"+recordKeyKey, h.get)
}

// reconcile makes the aggregation's children match the snapshot in the body
func (h *RoutesHandler) reconcile(c *gin.Context) {
	keyspace, ok := h.keyspace(c)
	if !ok {
		return
	}
	var snapshot reconcile.Snapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		aggregationKey := record.AggregationKey(c.Param(aggregationKeyKey))
		if report, err := h.ReconcileController.Reconcile(c.Request.Context(), keyspace, aggregationKey, &snapshot); err == nil {
			c.JSON(http.StatusOK, report)
		} else {
			routing.HandleApiErr(c, err)
		}
	}
}

func (h *RoutesHandler) listAggregation(c *gin.Context) {
	keyspace, ok := h.keyspace(c)
	if !ok {
		return
	}
	consistent, apiErr := routing.Consistent(c)
	if apiErr != nil {
		routing.HandleApiErr(c, apiErr)
		return
	}
	aggregationKey := record.AggregationKey(c.Param(aggregationKeyKey))
	if records, err := h.RecordController.ListAggregation(c.Request.Context(), keyspace, aggregationKey, consistent); err == nil {
		c.JSON(http.StatusOK, records)
	} else {
		routing.HandleApiErr(c, err)
	}
}

func (h *RoutesHandler) get(c *gin.Context) {
	keyspace, ok := h.keyspace(c)
	if !ok {
		return
	}
	consistent, apiErr := routing.Consistent(c)
	if apiErr != nil {
		routing.HandleApiErr(c, apiErr)
		return
	}
	key := record.Key(c.Param(recordKeyKey))
	if r, err := h.RecordController.Get(c.Request.Context(), keyspace, key, consistent); err == nil {
		c.JSON(http.StatusOK, r)
	} else {
		routing.HandleApiErr(c, err)
	}
}

func (h *RoutesHandler) keyspace(c *gin.Context) (record.Keyspace, bool) {
	keyspace, err := record.KeyspaceFromString(c.Param(keyspaceKey))
	if err != nil {
		routing.HandleJsonSerdesErr(c, err)
		return "", false
	}
	return keyspace, true
}
