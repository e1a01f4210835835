package errs

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// 错误码分段：1xxx 调用方错误，12xx 业务部分失败，15xx 依赖不可用
const (
	ArgsError           = 1002 // 参数校验失败，同步拒绝
	RecordNotFoundError = 1004 // 信箱/游标/消息不存在
	ConflictError       = 1009 // 幂等/单调写被拒：视为良性空操作
	PartialFanoutError  = 1206 // 批量扇出部分失败
	TransientStoreError = 1503 // 计数器/存储暂不可用，边界处有限重试
	ServerInternalError = 1500
)

var (
	ErrArgs             = NewCodeError(ArgsError, "invalid argument")
	ErrRecordNotFound   = NewCodeError(RecordNotFoundError, "record not found")
	ErrConflict         = NewCodeError(ConflictError, "conflicting write")
	ErrPartialFanout    = NewCodeError(PartialFanoutError, "partial fanout failure")
	ErrStoreUnavailable = NewCodeError(TransientStoreError, "store temporarily unavailable")
	ErrInternal         = NewCodeError(ServerInternalError, "internal server error")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	c := e.clone()
	if c.Detail == "" {
		c.Detail = detail
	} else {
		c.Detail += ", " + detail
	}
	return c
}

// WrapMsg 附加 kv 明细并带上调用栈
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	c := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if c.Detail == "" {
			c.Detail = detail
		} else {
			c.Detail += ", " + detail
		}
	}
	return errors.WithStack(c)
}

// Is 按错误码比较，忽略 Detail
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !stderrors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

func CodeOf(err error) int {
	var ce *CodeError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ServerInternalError
}

func IsArgs(err error) bool      { return CodeOf(err) == ArgsError }
func IsNotFound(err error) bool  { return CodeOf(err) == RecordNotFoundError }
func IsConflict(err error) bool  { return CodeOf(err) == ConflictError }
func IsTransient(err error) bool { return CodeOf(err) == TransientStoreError }

func New(msg string, kv ...any) error {
	return errors.New(toString(msg, kv))
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, toString(msg, kv))
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%v=", kv[i])
		if i+1 < len(kv) {
			fmt.Fprintf(&sb, "%v", kv[i+1])
		}
	}
	return sb.String()
}
