package domain

// 支持的绘图工具类型。
const (
	ToolBrush  = "brush"
	ToolEraser = "eraser"
)

// ValidTool 检查客户端提交的工具类型是否合法。
func ValidTool(tool string) bool {
	return tool == ToolBrush || tool == ToolEraser
}

// Point 表示笔画路径上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Operation 表示一次已完成的笔画操作记录。
// OperationID / AuthorID / AuthorColor / CreatedAt 由服务端在接受操作时分配，
// 客户端提交的同名字段会被覆盖。操作一旦进入日志即不可变：
// undo/redo 只是在 history 和 undone 两个容器之间移动它，不修改任何字段。
type Operation struct {
	OperationID string  `json:"operationId"`
	RoomID      string  `json:"roomId"`
	AuthorID    string  `json:"authorId"`
	AuthorColor string  `json:"authorColor"`
	Tool        string  `json:"tool"`
	Color       string  `json:"color"`
	Size        float64 `json:"size"`
	Path        []Point `json:"path"`
	CreatedAt   int64   `json:"createdAt"` // unix 毫秒时间戳
}
