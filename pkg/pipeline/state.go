package pipeline

import "fmt"

// State 是一次管线运行所处的阶段
//
//	Idle → ReadTip → BuildTree → CreateCommit → PublishRef → Done
//
// 任何阶段都可以转入 Failed。PublishRef 成功之前没有任何外部可见的变化。
type State int

const (
	StateIdle State = iota
	StateReadTip
	StateBuildTree
	StateCreateCommit
	StatePublishRef
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "Idle",
	StateReadTip:      "ReadTip",
	StateBuildTree:    "BuildTree",
	StateCreateCommit: "CreateCommit",
	StatePublishRef:   "PublishRef",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Transition 描述一次状态迁移
type Transition struct {
	RunID string
	From  State
	To    State
	Err   error // 仅在 To == StateFailed 时非空
}

// Observer 在每次状态迁移时被同步调用
type Observer func(Transition)
