package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/John-Robertt/hirelist/internal/domain"
)

// DefaultURL 是远端集合的固定地址。
const DefaultURL = "https://fetch-hiring.s3.amazonaws.com/hiring.json"

// json 与标准库行为一致，但字段名严格区分大小写（wire 上只认 id/listId/name）。
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// HTTPSource 对固定 endpoint 发起一次 GET，并把 body 解码为原始记录序列。
//
// 约束：
// - 不缓存、不重试；每次 Fetch 都是一次独立请求
// - 只负责“形状校验”（id/listId 必填且为整数），不做业务过滤
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// New 返回一个 HTTPSource；url 为空时使用 DefaultURL，c 为空时使用 http.DefaultClient。
func New(url string, c *http.Client) *HTTPSource {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultURL
	}
	if c == nil {
		c = http.DefaultClient
	}
	return &HTTPSource{URL: url, Client: c}
}

// Fetch 执行一次请求。错误只会是 *NetworkError 或 *DecodeError。
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.Record, error) {
	body, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := Decode(body)
	if err != nil {
		return nil, &DecodeError{URL: s.URL, Err: err}
	}
	return recs, nil
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, &NetworkError{URL: s.URL, Err: err}
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: s.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 丢弃 body，让连接可以被复用。
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{URL: s.URL, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: s.URL, Err: err}
	}
	return b, nil
}

type wireRecord struct {
	ID     *int    `json:"id"`
	ListID *int    `json:"listId"`
	Name   *string `json:"name"`
}

// Decode 把 JSON 数组解码为 Record 序列（保持原始顺序）。
//
// 形状要求：
// - 顶层必须是数组（null 也视为形状不符）
// - 每个元素必须包含整数 id 与 listId；name 可缺失、可为 null
// - 未知字段忽略
func Decode(body []byte) ([]domain.Record, error) {
	var raw *[]wireRecord
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("顶层不是 JSON 数组")
	}

	out := make([]domain.Record, 0, len(*raw))
	for i, w := range *raw {
		if w.ID == nil {
			return nil, fmt.Errorf("第 %d 条记录缺少 id", i)
		}
		if w.ListID == nil {
			return nil, fmt.Errorf("第 %d 条记录缺少 listId", i)
		}
		out = append(out, domain.NewRecord(*w.ID, *w.ListID, w.Name))
	}
	return out, nil
}
