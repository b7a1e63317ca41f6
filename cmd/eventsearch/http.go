// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/helpers"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/models"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/search"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"go.uber.org/zap"
)

type api struct {
	svc     *search.Service
	timeout time.Duration
}

// SetupRestAPI builds the router. Serving it is left to the caller.
func SetupRestAPI(svc *search.Service, requestTimeout time.Duration) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))

	// Logs all panic to error log
	router.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Search responses carry up to thousands of ids
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.HandleMethodNotAllowed = true
	router.NoMethod(helpers.HandleMethodNotAllowed)

	a := &api{svc: svc, timeout: requestTimeout}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/generate", a.generateHandler)
		v1.POST("/generate", a.generateHandler)
		v1.POST("/documents", a.insertHandler)
		v1.POST("/search", a.searchDirectHandler)
		v1.POST("/search/cached", a.searchCachedHandler)
	}
	return router
}

func (a *api) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), a.timeout)
}

func bindEvents(c *gin.Context) ([]string, bool) {
	var request models.EventsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		helpers.HandleError(c, shared.ValidationError("%s", err))
		return nil, false
	}
	return request.Events, true
}

// ---------------------- generate ----------------------

func (a *api) generateHandler(c *gin.Context) {
	var request models.GenerateRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		helpers.HandleErrorWithInputMessage(c, shared.ValidationError("%s", err), helpers.MessageInvalidCount)
		return
	}

	ctx, cncl := a.requestContext(c)
	defer cncl()
	result, err := a.svc.GenerateDocuments(ctx, request.N)
	if err != nil {
		helpers.HandleErrorWithInputMessage(c, err, helpers.MessageInvalidCount)
		return
	}
	c.JSON(http.StatusOK, models.GenerateResponse{
		Message: fmt.Sprintf("Generated %d mock documents", result.Created),
		Count:   result.Created,
	})
}

// ---------------------- documents ----------------------

func (a *api) insertHandler(c *gin.Context) {
	events, ok := bindEvents(c)
	if !ok {
		return
	}

	ctx, cncl := a.requestContext(c)
	defer cncl()
	id, err := a.svc.InsertDocument(ctx, events)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.InsertResponse{ID: id})
}

// ---------------------- search ----------------------

func (a *api) searchDirectHandler(c *gin.Context) {
	events, ok := bindEvents(c)
	if !ok {
		return
	}

	ctx, cncl := a.requestContext(c)
	defer cncl()
	result, err := a.svc.SearchDirect(ctx, events)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DirectSearchResponse{
		QueryTime:   models.FormatQueryTime(result.ElapsedMs),
		MatchCount:  result.Count,
		MatchingIds: result.Matches,
	})
}

func (a *api) searchCachedHandler(c *gin.Context) {
	events, ok := bindEvents(c)
	if !ok {
		return
	}

	ctx, cncl := a.requestContext(c)
	defer cncl()
	result, err := a.svc.SearchCached(ctx, events)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CachedSearchResponse{
		QueryTime:         models.FormatQueryTime(result.ElapsedMs),
		MatchCount:        result.Count,
		MatchingDocuments: result.Matches,
	})
}
