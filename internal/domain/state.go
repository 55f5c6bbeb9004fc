package domain

import "slices"

// Status 是 State 的判别标签。
type Status int

const (
	StatusLoading Status = iota
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// State 是一次运行的三态结果，同一时刻只有一个变体有效：
// - Loading：请求进行中，不携带数据
// - Success：携带过滤 + 排序后的记录
// - Failure：不携带任何载荷（错误细节只进日志，不暴露给 UI）
//
// State 是值类型；零值等价于 Loading()。
type State struct {
	status  Status
	records []Record
}

func Loading() State { return State{status: StatusLoading} }

func Failure() State { return State{status: StatusFailure} }

// Success 复制 records，调用方之后修改原切片不会影响 State。
// nil 会被规范化为空切片（空结果也是成功）。
func Success(records []Record) State {
	cp := make([]Record, len(records))
	copy(cp, records)
	return State{status: StatusSuccess, records: cp}
}

func (s State) Status() Status { return s.status }

// Records 返回记录副本；非 Success 时返回 nil。
func (s State) Records() []Record {
	if s.status != StatusSuccess {
		return nil
	}
	return slices.Clone(s.records)
}

// Len 返回记录条数（不复制）。
func (s State) Len() int { return len(s.records) }

// Equal 按变体与记录逐条比较。
func (s State) Equal(o State) bool {
	return s.status == o.status && slices.Equal(s.records, o.records)
}

type stateJSON struct {
	Status  string    `json:"status"`
	Records *[]Record `json:"records,omitempty"`
}

// MarshalJSON 输出 {"status":"loading|success|failure","records":[...]}。
// 只有 Success 带 records，且空结果输出 []。
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{Status: s.status.String()}
	if s.status == StatusSuccess {
		recs := s.records
		if recs == nil {
			recs = []Record{}
		}
		out.Records = &recs
	}
	return json.Marshal(out)
}
