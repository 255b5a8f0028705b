package handler

import (
	"net/http"

	wire "meetrix/pkg/models"

	"github.com/gin-gonic/gin"
)

func respondOK[T any](c *gin.Context, status int, data T) {
	c.JSON(status, wire.Envelope[T]{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, wire.Envelope[any]{Success: false, Error: message})
}

func respondInternal(c *gin.Context) {
	respondError(c, http.StatusInternalServerError, "internal server error")
}
