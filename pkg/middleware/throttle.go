package middleware

import (
	"strconv"
	"time"

	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/server"
)

// ThrottleConfig configures the in-flight throttle.
type ThrottleConfig struct {
	// Limit is the number of in-flight requests above which new requests
	// are rejected. Zero or negative disables the throttle.
	Limit int64

	// RetryAfter is advertised in the Retry-After header of rejections.
	// Zero omits the header.
	RetryAfter time.Duration

	// OnReject is called for every rejected request.
	OnReject func(req *server.Request, inflight int64)
}

// InflightThrottle returns an admission handler rejecting requests with
// 503 Service Unavailable while srv has at least limit requests in flight.
//
//	srv.First(middleware.InflightThrottle(srv, middleware.ThrottleConfig{Limit: 512}))
func InflightThrottle(srv *server.Server, config ThrottleConfig) server.AdmissionFunc {
	return func(req *server.Request, res *server.Response) bool {
		if config.Limit <= 0 {
			return true
		}
		inflight := srv.Inflight()
		if inflight < config.Limit {
			return true
		}

		err := httperr.New(httperr.KindServiceUnavailable,
			"in-flight request limit %d reached", config.Limit)
		if config.RetryAfter > 0 {
			secs := int((config.RetryAfter + time.Second - 1) / time.Second)
			err = err.WithHeader("Retry-After", strconv.Itoa(secs))
		}
		_ = res.SendError(err)

		srv.Logger().Debug("request throttled",
			"request_id", req.ID(),
			"inflight", inflight,
			"limit", config.Limit)
		if config.OnReject != nil {
			config.OnReject(req, inflight)
		}
		return false
	}
}
