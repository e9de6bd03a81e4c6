// Copyright (C) 2025 TutorLink (engineering@tutorlink.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutorlink/tutorlink/services/inference"
	"github.com/tutorlink/tutorlink/services/relay/handlers"
	"github.com/tutorlink/tutorlink/services/relay/observability"
	"github.com/tutorlink/tutorlink/services/relay/prompt"
)

// SetupRoutes wires the relay endpoints onto the router.
//
// POST /chat and POST /teaching-chat share the same contract and handler;
// they differ only in the injected system prompt.
func SetupRoutes(router *gin.Engine, gateway inference.Gateway) {
	chat := handlers.NewChatHandler(gateway,
		prompt.TutorSystemPrompt, observability.EndpointChat)
	teaching := handlers.NewChatHandler(gateway,
		prompt.TeachingSystemPrompt, observability.EndpointTeachingChat)
	health := handlers.NewHealthHandler(gateway)

	router.POST("/chat", chat.Handle)
	router.POST("/teaching-chat", teaching.Handle)
	router.GET("/chat/health", health.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
