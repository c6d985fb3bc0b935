package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindInvalidInput
	KindSourceResolution
	KindDownload
	KindProbeFallback
	KindDecode
	KindAnalysis
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInvalidInput:
		return "invalid_input"
	case KindSourceResolution:
		return "source_resolution"
	case KindDownload:
		return "download"
	case KindProbeFallback:
		return "probe_fallback"
	case KindDecode:
		return "decode"
	case KindAnalysis:
		return "analysis"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error 带分类的错误
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建分类错误
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap 用分类包装底层错误，err 为 nil 时返回 nil
func Wrap(kind Kind, err error, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Wrapf 同 Wrap，detail 支持格式化
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误链上第一个分类错误的 Kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is 判断 err 是否属于 kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Detail 返回面向用户的说明文字
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func IsTimeout(err error) bool          { return Is(err, KindTimeout) }
func IsSourceResolution(err error) bool { return Is(err, KindSourceResolution) }
func IsDownload(err error) bool         { return Is(err, KindDownload) }
func IsAnalysis(err error) bool         { return Is(err, KindAnalysis) }
func IsConfiguration(err error) bool    { return Is(err, KindConfiguration) }
