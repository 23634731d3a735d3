package errors

// 通用错误码 1xxx
//
// 各业务包在自己的 errors.go 中按号段声明：
// 2xxx chat，3xxx config，4xxx request，5xxx ws，6xxx target，7xxx queue，8xxx auth，9xxx tracing
var (
	ErrServer          = New(1000, 500, "服务器异常", nil)
	ErrBadRequest      = New(1001, 400, "请求异常", nil)
	ErrUnauthorized    = New(1002, 401, "未授权", nil)
	ErrForbidden       = New(1003, 403, "禁止访问", nil)
	ErrNotFound        = New(1004, 404, "资源不存在", nil)
	ErrTooManyRequests = New(1005, 429, "请求过于频繁", nil)
)
