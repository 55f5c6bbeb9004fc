package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/John-Robertt/hirelist/internal/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// ErrCodeNotFound 表示显式指定的 --config 文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是默认在 cwd 下查找的配置文件名。
	FileName = "hirelist.json"
	// DefaultTimeoutSec 是 HTTP 总超时的内置默认值（秒）。
	DefaultTimeoutSec = 20
	// DefaultListen 是 serve 子命令的默认监听地址。
	DefaultListen = "127.0.0.1:8080"

	maxTimeoutSec = 300
)

// CLIArgs 保留“是否显式指定”的信息，保证覆盖优先级可实现。
type CLIArgs struct {
	// ConfigPath 非空时必须存在；为空时尝试读取 <cwd>/hirelist.json（可选）。
	ConfigPath string

	Endpoint    string
	EndpointSet bool

	TimeoutSec int
	TimeoutSet bool

	Listen    string
	ListenSet bool
}

// FileConfig 对应 hirelist.json 的解析结构。
// TimeoutSec 为 nil 表示未配置；显式写出的值（包括 0）都要校验。
type FileConfig struct {
	Endpoint   string       `json:"endpoint"`
	TimeoutSec *int         `json:"timeout_sec"`
	Proxy      *ProxyConfig `json:"proxy"`
	Listen     string       `json:"listen"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Endpoint string
	Timeout  time.Duration
	ProxyURL string
	Listen   string

	// File 是实际读取到的配置文件路径；未读取时为空。
	File string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：读取该文件（必选，相对路径以 cwd 为基准）
// 2) 否则：尝试读取 <cwd>/hirelist.json（可选）
//
// 覆盖优先级：CLI > 配置文件 > 内置默认。proxy.url 只能由配置文件提供。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		cfgPath = ""
	}

	return merge(cli, fc, cfgPath)
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	endpoint := source.DefaultURL
	if cli.EndpointSet {
		endpoint = strings.TrimSpace(cli.Endpoint)
	} else if strings.TrimSpace(fc.Endpoint) != "" {
		endpoint = strings.TrimSpace(fc.Endpoint)
	}
	if err := validateHTTPURL("endpoint", endpoint); err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	timeoutSec := DefaultTimeoutSec
	if cli.TimeoutSet {
		timeoutSec = cli.TimeoutSec
	} else if fc.TimeoutSec != nil {
		timeoutSec = *fc.TimeoutSec
	}
	if timeoutSec < 1 || timeoutSec > maxTimeoutSec {
		return EffectiveConfig{}, invalid(fmt.Errorf("timeout_sec 必须在 [1, %d] 内，实际是 %d", maxTimeoutSec, timeoutSec))
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}

	listen := DefaultListen
	if cli.ListenSet {
		listen = strings.TrimSpace(cli.Listen)
	} else if strings.TrimSpace(fc.Listen) != "" {
		listen = strings.TrimSpace(fc.Listen)
	}
	if listen == "" {
		return EffectiveConfig{}, invalid(errors.New("listen 不能为空"))
	}

	return EffectiveConfig{
		Endpoint: endpoint,
		Timeout:  time.Duration(timeoutSec) * time.Second,
		ProxyURL: proxyURL,
		Listen:   listen,
		File:     cfgPath,
	}, nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
