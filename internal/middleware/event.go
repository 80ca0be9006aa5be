package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-attendance/backend/internal/models"
)

// ContextEvent is the key for the event loaded from the :id path parameter.
const ContextEvent = "event"

// EventFrom returns the event set by the event loader.
func EventFrom(c *gin.Context) *models.Event {
	return c.MustGet(ContextEvent).(*models.Event)
}

// EventTablesFrom returns the loaded event's tables inside the caller's partition.
func EventTablesFrom(c *gin.Context) models.EventTables {
	return EventFrom(c).Tables(IdentityFrom(c).Partition)
}
