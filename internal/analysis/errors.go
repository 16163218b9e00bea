package analysis

import (
	"errors"
	"fmt"
	"time"

	"thai-lotto-bot/internal/database"
)

// ErrorKind 分析错误类型
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindInsufficientData
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientData:
		return "insufficient_data"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error 预期内的业务错误；存储故障等意外错误不使用该类型
type Error struct {
	Kind     ErrorKind
	Message  string
	Found    int
	Required int
}

func (e *Error) Error() string {
	if e.Kind == KindInsufficientData {
		return fmt.Sprintf("%s: %s (found %d, need %d)", e.Kind, e.Message, e.Found, e.Required)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ValidationError 参数校验失败
func ValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// InsufficientData 样本数不足
func InsufficientData(what string, found, required int) *Error {
	return &Error{Kind: KindInsufficientData, Message: what, Found: found, Required: required}
}

// NotFound 数据不存在
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// IsKind 判断错误链中是否包含指定类型的 *Error
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ValidateField 校验号码类型
func ValidateField(field database.DigitType) error {
	if _, err := database.ParseDigitType(string(field)); err != nil {
		return ValidationError("invalid field %q", field)
	}
	return nil
}

// ParseTargetDate 校验并解析ISO日期
func ParseTargetDate(s string) (time.Time, error) {
	d, err := database.ParseDate(s)
	if err != nil {
		return time.Time{}, ValidationError("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}
