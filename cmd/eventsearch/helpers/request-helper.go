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

package helpers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/models"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/search"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"go.uber.org/zap"
)

const (
	MessageInvalidInput   = "Invalid or missing events list"
	MessageInvalidCount   = "Invalid document count"
	MessageInternal       = "Internal server error"
	MessageUnavailable    = "Service unavailable"
	MessageMethodNotAllow = "Method not allowed"
)

// HandleError answers with the status matching the kind of err.
// The detail goes to the log, the client only sees a generic message.
func HandleError(c *gin.Context, err error) {
	HandleErrorWithInputMessage(c, err, MessageInvalidInput)
}

// HandleErrorWithInputMessage is HandleError for routes whose input is not an events list.
// invalidInput is the message sent on validation errors.
func HandleErrorWithInputMessage(c *gin.Context, err error, invalidInput string) {
	if c == nil {
		panic("HandleError: c is nil")
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	search.RecordError(shared.Classify(err))

	switch {
	case errors.Is(err, shared.ErrValidation):
		HandleInvalidInputError(c, err, invalidInput)
	case errors.Is(err, shared.ErrStoreConnection):
		HandleServiceUnavailableError(c, err)
	default:
		HandleInternalServerError(c, err)
	}
}

func HandleInvalidInputError(c *gin.Context, err error, message string) {
	zap.S().Infow(
		"Invalid input error",
		"route", c.FullPath(),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: message})
}

func HandleServiceUnavailableError(c *gin.Context, err error) {
	zap.S().Warnw(
		"Store unavailable",
		"route", c.FullPath(),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: MessageUnavailable})
}

func HandleInternalServerError(c *gin.Context, err error) {
	zap.S().Errorw(
		"Internal server error",
		"route", c.FullPath(),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: MessageInternal})
}

func HandleMethodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, models.ErrorResponse{Error: MessageMethodNotAllow})
}
