package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key for the request ID.
const ContextKeyRequestID = "request_id"

// RequestIDHeader carries the request ID in and out of the API. Exam-taking
// clients reconnect a lot (WS drops, tab reloads), so keeping a caller-sent
// ID lets one student flow be traced across retries.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware attaches a request ID to every request and echoes it
// in the response. A caller-supplied ID is kept only if it is a well-formed
// UUID; anything else is replaced so logs never carry arbitrary strings.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header(RequestIDHeader, reqID)
		c.Next()
	}
}
