package domain

import "fmt"

// Cursor 表示参与者在画布上的临时光标位置。
// 不进入操作日志，也不会重放给新加入的客户端。
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant 表示房间内的一个活跃连接。
// ID 是连接级别的标识，不是持久化的用户身份。
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	Cursor      Cursor `json:"cursor"`
}

// palette 是分配给参与者的固定颜色盘。
var palette = []string{
	"#FF6B6B", "#4ECDC4", "#FFD166", "#06D6A0",
	"#118AB2", "#EF476F", "#7209B7", "#F72585",
	"#3A86FF", "#FB5607",
}

// ColorFor 根据连接 ID 确定性地从颜色盘中派生一个颜色。
// 同一个 ID 在进程生命周期内总是映射到同一个颜色。
func ColorFor(id string) string {
	var acc int32
	for _, r := range id {
		acc = int32(r) + ((acc << 5) - acc)
	}
	if acc < 0 {
		acc = -acc
	}
	return palette[int(acc)%len(palette)]
}

// DefaultDisplayName 为未提供昵称的连接生成默认显示名。
func DefaultDisplayName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return fmt.Sprintf("User-%s", short)
}
