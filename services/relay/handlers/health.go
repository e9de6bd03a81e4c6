// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorlink/tutorlink/services/inference"
)

// HealthHandler serves GET /chat/health.
type HealthHandler struct {
	gateway inference.Gateway
}

// NewHealthHandler constructs a health handler probing the given gateway.
func NewHealthHandler(gateway inference.Gateway) *HealthHandler {
	return &HealthHandler{gateway: gateway}
}

// Handle reports relay health.
//
// # Description
//
// Healthy means the upstream inference binding answered the probe; a 503
// with status "unhealthy" means it did not. The probe failure detail stays
// in the server log.
func (h *HealthHandler) Handle(c *gin.Context) {
	if err := h.gateway.Ping(c.Request.Context()); err != nil {
		slog.Warn("Health probe failed, upstream inference unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"upstream": "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"upstream": "reachable",
	})
}
