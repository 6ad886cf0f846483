package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledger-core/internal/core"
	"ledger-core/internal/pkg/apierr"
	"ledger-core/internal/pkg/logging"
)

// MakeCreateCommandHandler wires create_from_params: durably enqueue
// params and return immediately with the accepted command.
func MakeCreateCommandHandler(container HandlerDependencies) gin.HandlerFunc {
	c := container.GetCore()

	return func(ctx *gin.Context) {
		var params map[string]any
		if err := ctx.ShouldBindJSON(&params); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"code": "invalid_json", "message": err.Error()})
			return
		}

		cmd, verr := c.CreateFromParams(ctx.Request.Context(), params)
		if verr != nil {
			apiErr := apierr.ToAPIError(verr)
			logging.Warn("create_from_params rejected", map[string]interface{}{
				"code":  apiErr.Code,
				"ip":    ctx.ClientIP(),
			})
			ctx.JSON(apiErr.Status, apiErr)
			return
		}

		logging.Info("command accepted", map[string]interface{}{
			"command_id":  cmd.ID,
			"instance_id": cmd.InstanceID,
		})
		ctx.JSON(http.StatusAccepted, gin.H{"command": cmd})
	}
}

// processRequest wraps the command params with the synchronous endpoint's
// on_error option.
type processRequest struct {
	Params  map[string]any `json:"params"`
	OnError string         `json:"on_error"`
}

// MakeProcessCommandHandler wires process_from_params: validate and run
// params synchronously, returning the projection, the accepted command,
// or a changeset-shaped validation error.
func MakeProcessCommandHandler(container HandlerDependencies) gin.HandlerFunc {
	c := container.GetCore()

	return func(ctx *gin.Context) {
		var req processRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"code": "invalid_json", "message": err.Error()})
			return
		}

		onError := core.OnErrorFail
		if req.OnError == string(core.OnErrorRetry) {
			onError = core.OnErrorRetry
		}

		projection, cmd, verr := c.ProcessFromParams(ctx.Request.Context(), req.Params, core.ProcessOpts{OnError: onError})
		if verr != nil {
			apiErr := apierr.ToAPIError(verr)
			body := gin.H{"code": apiErr.Code, "message": apiErr.Message, "fields": apiErr.Fields}
			if cmd != nil {
				body["command"] = cmd
			}
			logging.Warn("process_from_params failed", map[string]interface{}{
				"code": apiErr.Code,
			})
			ctx.JSON(apiErr.Status, body)
			return
		}

		ctx.JSON(http.StatusOK, gin.H{"command": cmd, "result": projection})
	}
}
