// Package pipeline 把原始记录序列变成最终展示顺序：先过滤，再排序。
//
// 所有函数都是纯函数：不修改入参，相同输入 => 相同输出。
package pipeline

import (
	"sort"

	"github.com/samber/lo"

	"github.com/John-Robertt/hirelist/internal/domain"
)

// Process 依次执行 Filter 与 Sort。空输入（或过滤后为空）返回空切片而非 nil。
func Process(raw []domain.Record) []domain.Record {
	return Sort(Filter(raw))
}

// Filter 丢弃 label 缺失或为空串的记录；其余全部保留（包括重复 id）。
// 返回新切片，顺序与输入一致。
func Filter(raw []domain.Record) []domain.Record {
	out := lo.Filter(raw, func(r domain.Record, _ int) bool {
		return r.Valid()
	})
	if out == nil {
		out = []domain.Record{}
	}
	return out
}

// Sort 返回排序后的副本：两趟稳定排序，先按 label 升序，再按 groupID 升序。
//
// 不能合并成一个 (groupID, label) 复合比较器：groupID 相同时的先后顺序
// 只来自第一趟的稳定性，重复 label 时两者结果可能不同。
func Sort(recs []domain.Record) []domain.Record {
	out := make([]domain.Record, len(recs))
	copy(out, recs)

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Label()
		b, _ := out[j].Label()
		return a < b
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GroupID() < out[j].GroupID()
	})
	return out
}
