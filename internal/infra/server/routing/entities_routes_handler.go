package routing

import (
	"net/http"

	"github.com/gin-gonic/gin"

	entityController "github.com/lloydmeta/settle/internal/api/controllers/entity"
	"github.com/lloydmeta/settle/internal/api/models/entity"
)

var entitiesPath = "/entities"

type EntitiesRoutesHandler struct {
	Controller entityController.Controller
}

func (h *EntitiesRoutesHandler) RegisterRoutes(routerGroup *gin.RouterGroup) {
	routerGroup.POST(entitiesPath, h.create)
}

// create writes one mirror record per keyspace, all or nothing.
//
// 201 with the key mappings, or 409 with the violating keys
func (h *EntitiesRoutesHandler) create(c *gin.Context) {
	var newEntity entity.NewEntity
	if err := c.ShouldBindJSON(&newEntity); err != nil {
		HandleJsonSerdesErr(c, err)
	} else {
		if created, err := h.Controller.Create(c.Request.Context(), &newEntity); err == nil {
			c.JSON(http.StatusCreated, created)
		} else {
			HandleApiErr(c, err)
		}
	}
}
