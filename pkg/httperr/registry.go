package httperr

import "net/http"

// Template defines a registered error kind.
type Template struct {
	Status  int
	Message string
}

// Error kinds with a built-in meaning in the server.
const (
	KindBadRequest                    = "BadRequest"
	KindUnauthorized                  = "Unauthorized"
	KindPaymentRequired               = "PaymentRequired"
	KindForbidden                     = "Forbidden"
	KindNotFound                      = "NotFound"
	KindMethodNotAllowed              = "MethodNotAllowed"
	KindNotAcceptable                 = "NotAcceptable"
	KindProxyAuthenticationRequired   = "ProxyAuthenticationRequired"
	KindRequestTimeout                = "RequestTimeout"
	KindConflict                      = "Conflict"
	KindGone                          = "Gone"
	KindLengthRequired                = "LengthRequired"
	KindPreconditionFailed            = "PreconditionFailed"
	KindRequestEntityTooLarge         = "RequestEntityTooLarge"
	KindRequesturiTooLarge            = "RequesturiTooLarge"
	KindUnsupportedMediaType          = "UnsupportedMediaType"
	KindRangeNotSatisfiable           = "RangeNotSatisfiable"
	KindExpectationFailed             = "ExpectationFailed"
	KindImATeapot                     = "ImATeapot"
	KindUnprocessableEntity           = "UnprocessableEntity"
	KindLocked                        = "Locked"
	KindFailedDependency              = "FailedDependency"
	KindUpgradeRequired               = "UpgradeRequired"
	KindPreconditionRequired          = "PreconditionRequired"
	KindTooManyRequests               = "TooManyRequests"
	KindRequestHeaderFieldsTooLarge   = "RequestHeaderFieldsTooLarge"
	KindInternalServer                = "InternalServer"
	KindNotImplemented                = "NotImplemented"
	KindBadGateway                    = "BadGateway"
	KindServiceUnavailable            = "ServiceUnavailable"
	KindGatewayTimeout                = "GatewayTimeout"
	KindHTTPVersionNotSupported       = "HttpVersionNotSupported"
	KindNetworkAuthenticationRequired = "NetworkAuthenticationRequired"

	// KindInvalidVersion is raised when a route matched but none of its
	// version predicates accepted the request's version token.
	KindInvalidVersion = "InvalidVersion"

	// KindInternal is used for intercepted panics that no listener handled.
	KindInternal = "Internal"

	// KindAsync is used when a suspending handler fails without a cause.
	KindAsync = "Async"

	// KindRequestClose marks requests whose connection went away before
	// the response was complete.
	KindRequestClose = "RequestClose"
)

// StatusClientClosedRequest is the non-standard status recorded for requests
// terminated because the client connection closed.
const StatusClientClosedRequest = 444

// registry maps error kinds to their templates.
var registry = map[string]Template{
	// ============================================
	// 4xx
	// ============================================

	KindBadRequest:                  {Status: http.StatusBadRequest, Message: "Bad Request"},
	KindUnauthorized:                {Status: http.StatusUnauthorized, Message: "Unauthorized"},
	KindPaymentRequired:             {Status: http.StatusPaymentRequired, Message: "Payment Required"},
	KindForbidden:                   {Status: http.StatusForbidden, Message: "Forbidden"},
	KindNotFound:                    {Status: http.StatusNotFound, Message: "Not Found"},
	KindMethodNotAllowed:            {Status: http.StatusMethodNotAllowed, Message: "Method Not Allowed"},
	KindNotAcceptable:               {Status: http.StatusNotAcceptable, Message: "Not Acceptable"},
	KindProxyAuthenticationRequired: {Status: http.StatusProxyAuthRequired, Message: "Proxy Authentication Required"},
	KindRequestTimeout:              {Status: http.StatusRequestTimeout, Message: "Request Timeout"},
	KindConflict:                    {Status: http.StatusConflict, Message: "Conflict"},
	KindGone:                        {Status: http.StatusGone, Message: "Gone"},
	KindLengthRequired:              {Status: http.StatusLengthRequired, Message: "Length Required"},
	KindPreconditionFailed:          {Status: http.StatusPreconditionFailed, Message: "Precondition Failed"},
	KindRequestEntityTooLarge:       {Status: http.StatusRequestEntityTooLarge, Message: "Request Entity Too Large"},
	KindRequesturiTooLarge:          {Status: http.StatusRequestURITooLong, Message: "Request-URI Too Large"},
	KindUnsupportedMediaType:        {Status: http.StatusUnsupportedMediaType, Message: "Unsupported Media Type"},
	KindRangeNotSatisfiable:         {Status: http.StatusRequestedRangeNotSatisfiable, Message: "Range Not Satisfiable"},
	KindExpectationFailed:           {Status: http.StatusExpectationFailed, Message: "Expectation Failed"},
	KindImATeapot:                   {Status: http.StatusTeapot, Message: "I'm a teapot"},
	KindUnprocessableEntity:         {Status: http.StatusUnprocessableEntity, Message: "Unprocessable Entity"},
	KindLocked:                      {Status: http.StatusLocked, Message: "Locked"},
	KindFailedDependency:            {Status: http.StatusFailedDependency, Message: "Failed Dependency"},
	KindUpgradeRequired:             {Status: http.StatusUpgradeRequired, Message: "Upgrade Required"},
	KindPreconditionRequired:        {Status: http.StatusPreconditionRequired, Message: "Precondition Required"},
	KindTooManyRequests:             {Status: http.StatusTooManyRequests, Message: "Too Many Requests"},
	KindRequestHeaderFieldsTooLarge: {Status: http.StatusRequestHeaderFieldsTooLarge, Message: "Request Header Fields Too Large"},
	KindInvalidVersion:              {Status: http.StatusBadRequest, Message: "Invalid Version"},
	KindRequestClose:                {Status: StatusClientClosedRequest, Message: "Request Closed"},

	// ============================================
	// 5xx
	// ============================================

	KindInternalServer:                {Status: http.StatusInternalServerError, Message: "Internal Server Error"},
	KindInternal:                      {Status: http.StatusInternalServerError, Message: "Internal Error"},
	KindAsync:                         {Status: http.StatusInternalServerError, Message: "async handler rejected without a cause"},
	KindNotImplemented:                {Status: http.StatusNotImplemented, Message: "Not Implemented"},
	KindBadGateway:                    {Status: http.StatusBadGateway, Message: "Bad Gateway"},
	KindServiceUnavailable:            {Status: http.StatusServiceUnavailable, Message: "Service Unavailable"},
	KindGatewayTimeout:                {Status: http.StatusGatewayTimeout, Message: "Gateway Timeout"},
	KindHTTPVersionNotSupported:       {Status: http.StatusHTTPVersionNotSupported, Message: "HTTP Version Not Supported"},
	KindNetworkAuthenticationRequired: {Status: http.StatusNetworkAuthenticationRequired, Message: "Network Authentication Required"},
}

// Kinds returns all registered error kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Lookup returns the template for an error kind.
func Lookup(kind string) (Template, bool) {
	t, ok := registry[kind]
	return t, ok
}

// Register adds a new error kind to the registry. It must be called during
// setup, before the server handles requests.
func Register(kind string, template Template) {
	registry[kind] = template
}
