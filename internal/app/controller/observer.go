package controller

import "github.com/John-Robertt/hirelist/internal/domain"

// Observer 用于把“状态迁移”从 Controller 中解耦出来（UI / 进度输出都通过它接收通知）。
//
// 约束：
// - controller 包只负责发事件，不做任何输出
// - 回调按迁移发生的顺序串行调用；实现应尽快返回
// - 回调内不得同步调用 Trigger/Close（会死锁）；需要时另起 goroutine
type Observer interface {
	// OnStateChange 在每次状态迁移后调用。seq 是产生该状态的 run 序号。
	OnStateChange(seq uint64, st domain.State)
}
