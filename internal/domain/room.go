package domain

// CanvasSize 表示房间画布的尺寸，随每次房间快照下发。
type CanvasSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// 画布默认尺寸。
const (
	DefaultCanvasWidth  = 1200
	DefaultCanvasHeight = 800
)

// DefaultCanvasSize 返回默认的画布尺寸。
func DefaultCanvasSize() CanvasSize {
	return CanvasSize{Width: DefaultCanvasWidth, Height: DefaultCanvasHeight}
}
