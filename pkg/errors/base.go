package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// ============================================================================
// Success
// ============================================================================

// OK represents a successful operation.
var OK = Register(&Errno{
	Code:      0,
	HTTP:      http.StatusOK,
	GRPCCode:  codes.OK,
	MessageEN: "Success",
	MessageZH: "成功",
})

// ============================================================================
// Request Errors (Category: 01)
// ============================================================================

var (
	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryRequest, 0),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Bad request",
		MessageZH: "请求错误",
	})

	// ErrInvalidParam indicates an invalid parameter.
	ErrInvalidParam = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryRequest, 1),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Invalid parameter",
		MessageZH: "参数无效",
	})

	// ErrRequestTooLarge indicates the request body is too large.
	ErrRequestTooLarge = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryRequest, 2),
		HTTP:      http.StatusRequestEntityTooLarge,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Request entity too large",
		MessageZH: "请求体过大",
	})
)

// ============================================================================
// Resource Errors (Category: 04)
// ============================================================================

var (
	// ErrNotFound indicates the resource is not found.
	ErrNotFound = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryResource, 0),
		HTTP:      http.StatusNotFound,
		GRPCCode:  codes.NotFound,
		MessageEN: "Resource not found",
		MessageZH: "资源不存在",
	})

	// ErrRouteNotFound indicates the route is not found.
	ErrRouteNotFound = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryResource, 1),
		HTTP:      http.StatusNotFound,
		GRPCCode:  codes.NotFound,
		MessageEN: "Route not found",
		MessageZH: "路由不存在",
	})
)

// ============================================================================
// Internal Errors (Category: 07)
// ============================================================================

var (
	// ErrInternal indicates an internal server error.
	ErrInternal = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryInternal, 0),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Internal,
		MessageEN: "Internal server error",
		MessageZH: "服务器内部错误",
	})

	// ErrPanic indicates a service panic.
	ErrPanic = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryInternal, 1),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Internal,
		MessageEN: "Service panic",
		MessageZH: "服务崩溃",
	})
)

// ============================================================================
// Cache Errors (Category: 09)
// ============================================================================

var (
	// ErrCache indicates a cache error.
	ErrCache = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryCache, 0),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Internal,
		MessageEN: "Cache error",
		MessageZH: "缓存错误",
	})
)

// ============================================================================
// Network Errors (Category: 10)
// ============================================================================

var (
	// ErrServiceUnavailable indicates the service is unavailable.
	ErrServiceUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryNetwork, 0),
		HTTP:      http.StatusServiceUnavailable,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Service unavailable",
		MessageZH: "服务不可用",
	})
)

// ============================================================================
// Timeout Errors (Category: 11)
// ============================================================================

var (
	// ErrTimeout indicates operation timeout.
	ErrTimeout = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryTimeout, 0),
		HTTP:      http.StatusGatewayTimeout,
		GRPCCode:  codes.DeadlineExceeded,
		MessageEN: "Operation timeout",
		MessageZH: "操作超时",
	})

	// ErrRequestTimeout indicates request timeout.
	ErrRequestTimeout = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryTimeout, 1),
		HTTP:      http.StatusRequestTimeout,
		GRPCCode:  codes.DeadlineExceeded,
		MessageEN: "Request timeout",
		MessageZH: "请求超时",
	})
)

// ============================================================================
// Configuration Errors (Category: 12)
// ============================================================================

var (
	// ErrConfig indicates a configuration error.
	ErrConfig = Register(&Errno{
		Code:      MakeCode(ServiceCommon, CategoryConfig, 0),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Internal,
		MessageEN: "Configuration error",
		MessageZH: "配置错误",
	})
)
