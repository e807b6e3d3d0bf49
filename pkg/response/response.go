// Package response defines the JSON envelope shared by all HTTP handlers.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the uniform envelope: code 0 means success, anything else carries
// the HTTP status it shipped with.
type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: "ok", Data: data})
}

func ErrorWithStatus(c *gin.Context, status int, message string) {
	c.JSON(status, Body{Code: status, Message: message})
}
