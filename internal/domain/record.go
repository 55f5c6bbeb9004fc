package domain

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record 是远端集合中的一条记录（已从 wire payload 解码）。
//
// 约束：
// - 构造后不可变：字段不导出，只能通过 NewRecord 构造、通过访问器读取
// - label 缺失与空串在展示层面等价（都视为无效），但仍保留“是否缺失”的信息，便于原样回写
type Record struct {
	id       int
	groupID  int
	label    string
	hasLabel bool
}

// NewRecord 构造一条 Record。label 为 nil 表示 wire 上 name 缺失或为 null。
func NewRecord(id, groupID int, label *string) Record {
	r := Record{id: id, groupID: groupID}
	if label != nil {
		r.label = *label
		r.hasLabel = true
	}
	return r
}

func (r Record) ID() int      { return r.id }
func (r Record) GroupID() int { return r.groupID }

// Label 返回 label 及其是否存在。
func (r Record) Label() (string, bool) { return r.label, r.hasLabel }

// Valid 报告该记录是否可展示：label 必须存在且非空。
func (r Record) Valid() bool { return r.hasLabel && r.label != "" }

type wireRecord struct {
	ID     int     `json:"id"`
	ListID int     `json:"listId"`
	Name   *string `json:"name"`
}

// MarshalJSON 输出与远端 payload 相同的形状：{"id","listId","name"}（缺失时 name=null）。
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{ID: r.id, ListID: r.groupID}
	if r.hasLabel {
		s := r.label
		w.Name = &s
	}
	return json.Marshal(w)
}
