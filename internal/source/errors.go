package source

import (
	"errors"
	"fmt"
)

const (
	KindNetwork = "network_error"
	KindDecode  = "decode_error"
)

// NetworkError 表示传输层失败：连接失败、超时、读 body 失败，或远端返回了非 2xx。
// StatusCode==0 表示请求没有拿到 HTTP 响应。
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "network error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s 返回 HTTP %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("请求 %s 失败", e.URL)
	}
	return fmt.Sprintf("请求 %s 失败：%v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError 表示响应 body 不是合法 JSON，或与期望的形状不一致。
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "decode error"
	}
	return fmt.Sprintf("解析 %s 的响应失败：%v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind 把 err 归类为 KindNetwork / KindDecode；其他错误返回空串。
func Kind(err error) string {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return KindNetwork
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return KindDecode
	}
	return ""
}
