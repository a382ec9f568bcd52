package rest

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsecrm/syncd/pkg/auth"
	"github.com/pulsecrm/syncd/pkg/constants"
	"github.com/pulsecrm/syncd/pkg/errors"
)

// GetDeviceFromContext extracts the authenticated device from gin.Context
func GetDeviceFromContext(c *gin.Context) *auth.DeviceSession {
	deviceInterface, exists := c.Get(constants.ContextKeyDevice)
	if !exists {
		return nil
	}

	device := deviceInterface.(auth.DeviceSession)
	return &device
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	errorCode := errors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	c.JSON(code, gin.H{
		constants.ResponseError: message,
		constants.FieldMessage:  message,
		"code":                  errorCode,
		"data":                  nil,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// HandleGetEnvelope executes a read action and returns the result wrapped in a JSON key
// Response: { [key]: result }
func HandleGetEnvelope(c *gin.Context, key string, action func() (interface{}, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: result})
}

// HandleDeleteEnvelope executes a delete action and returns a success message
// Response: { message: successMsg }
func HandleDeleteEnvelope(c *gin.Context, successMsg string, action func() error) {
	if err := action(); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{constants.FieldMessage: successMsg})
}
