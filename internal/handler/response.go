package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the JSON shape shared by the operator endpoints. Status is
// "ok" or "error"; Meta carries counts and other per-request context.
type envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, envelope{
		Status: "ok",
		Data:   data,
		Meta:   meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, envelope{
		Status: "error",
		Error:  message,
		Meta:   meta,
	})
}
