// Package port file: internal/core/port/errors.go
package port

import (
	"errors"
	"fmt"
	"strings"
)

// 标准错误。具体的错误类型通过 errors.Is 与下列哨兵值匹配。
var (
	ErrNetwork    = errors.New("上游目录暂时不可用")
	ErrProtocol   = errors.New("上游目录返回了无法识别的响应")
	ErrNotFound   = errors.New("插件不存在")
	ErrValidation = errors.New("参数校验失败")
)

// NetworkError 瞬时性的上游故障（连接失败、超时、5xx、限流），调用方可以重试。
type NetworkError struct {
	Op         string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, ErrNetwork.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, "，已尝试 %d 次", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// RateLimited 上游返回 429
func (e *NetworkError) RateLimited() bool { return e.StatusCode == 429 }

// ProtocolError 上游响应结构不符合预期，不可重试。
type ProtocolError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Op, ErrProtocol.Error(), e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// NotFoundError 请求的 slug 在上游不存在
type NotFoundError struct {
	Slug string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: '%s'", ErrNotFound.Error(), e.Slug)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FieldViolation 单个字段的校验失败原因
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError 调用方提交的配置或参数未通过校验；原有状态保持不变。
type ValidationError struct {
	Violations []FieldViolation
}

// NewValidationError 构造只含一条违例的校验错误
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Reason: reason}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add 追加一条违例
func (e *ValidationError) Add(field, reason string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
}

// OrNil 没有违例时返回 nil
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}
