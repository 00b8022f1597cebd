package httpserver

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDKey = "requestid"

var (
	reqStartUnix = time.Now().UnixNano()
	reqCounter   uint64
)

// makeReqID returns external X-Request-Id if provided, otherwise generates UUIDv4;
// if uuid generation fails, fallback to timestamp+counter.
func makeReqID(c *fiber.Ctx) string {
	if hdr := c.Get(fiber.HeaderXRequestID); hdr != "" {
		return hdr
	}
	if v, err := uuid.NewRandom(); err == nil {
		return v.String()
	}
	n := atomic.AddUint64(&reqCounter, 1)
	return fmt.Sprintf("%x-%x", reqStartUnix, n)
}

// requestID stores the request id in locals and echoes it in the response.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := makeReqID(c)
		c.Locals(requestIDKey, id)
		c.Set(fiber.HeaderXRequestID, id)
		return c.Next()
	}
}

// reqLogger returns the base logger tagged with the request id.
func reqLogger(base log.Interface, c *fiber.Ctx) log.Interface {
	id, _ := c.Locals(requestIDKey).(string)
	if id == "" {
		id = makeReqID(c)
	}
	return base.WithField("req", id)
}
