package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEO6667/Collaborative-Canvas/internal/domain"
	"github.com/NEO6667/Collaborative-Canvas/internal/registry"
)

func makeParticipant(id, name string) domain.Participant {
	return domain.Participant{
		ID:          id,
		DisplayName: name,
		Color:       domain.ColorFor(id),
	}
}

func TestRegistry_JoinCreatesRoomLazily(t *testing.T) {
	reg := registry.New(domain.DefaultCanvasSize())

	p := reg.Join("room-1", makeParticipant("conn-a", "Alice"))

	assert.Equal(t, "conn-a", p.ID)
	assert.Equal(t, 1, reg.Count("room-1"))

	snap := reg.Snapshot("room-1")
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "Alice", snap.Participants[0].DisplayName)
	assert.Equal(t, domain.DefaultCanvasSize(), snap.CanvasSize)
}

func TestRegistry_JoinSameIDOverwritesMetadata(t *testing.T) {
	reg := registry.New(domain.DefaultCanvasSize())
	reg.Join("room-1", makeParticipant("conn-a", "Alice"))

	// 同一 ID 重复加入：覆盖之前的元数据，不是错误
	reg.Join("room-1", makeParticipant("conn-a", "Alicia"))

	snap := reg.Snapshot("room-1")
	require.Len(t, snap.Participants, 1, "重复加入不应产生第二个参与者")
	assert.Equal(t, "Alicia", snap.Participants[0].DisplayName)
}

func TestRegistry_LeaveRemovesEmptyRoom(t *testing.T) {
	reg := registry.New(domain.DefaultCanvasSize())
	reg.Join("room-1", makeParticipant("conn-a", "Alice"))
	reg.Join("room-1", makeParticipant("conn-b", "Bob"))

	removed, roomRemoved := reg.Leave("room-1", "conn-a")
	assert.True(t, removed)
	assert.False(t, roomRemoved, "还有成员时房间不应被销毁")

	removed, roomRemoved = reg.Leave("room-1", "conn-b")
	assert.True(t, removed)
	assert.True(t, roomRemoved, "最后一个成员离开后房间应立即销毁")
	assert.Equal(t, 0, reg.Count("room-1"))
}

func TestRegistry_LeaveUnknownIsNoop(t *testing.T) {
	reg := registry.New(domain.DefaultCanvasSize())

	removed, roomRemoved := reg.Leave("ghost", "conn-a")
	assert.False(t, removed)
	assert.False(t, roomRemoved)

	reg.Join("room-1", makeParticipant("conn-a", "Alice"))
	removed, _ = reg.Leave("room-1", "conn-zzz")
	assert.False(t, removed, "移除不存在的参与者应是 no-op")
	assert.Equal(t, 1, reg.Count("room-1"))
}

func TestRegistry_UpdateCursor(t *testing.T) {
	reg := registry.New(domain.DefaultCanvasSize())
	reg.Join("room-1", makeParticipant("conn-a", "Alice"))

	ok := reg.UpdateCursor("room-1", "conn-a", domain.Cursor{X: 42, Y: 7})
	require.True(t, ok)

	snap := reg.Snapshot("room-1")
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, domain.Cursor{X: 42, Y: 7}, snap.Participants[0].Cursor,
		"光标应合并进参与者记录")

	// 未知参与者/房间：no-op
	assert.False(t, reg.UpdateCursor("room-1", "conn-zzz", domain.Cursor{X: 1, Y: 1}))
	assert.False(t, reg.UpdateCursor("ghost", "conn-a", domain.Cursor{X: 1, Y: 1}))
}

func TestRegistry_SnapshotUnknownRoomReturnsDefault(t *testing.T) {
	canvas := domain.CanvasSize{Width: 640, Height: 480}
	reg := registry.New(canvas)

	// 未知房间不报错：返回空成员列表和默认画布
	snap := reg.Snapshot("ghost")
	assert.NotNil(t, snap.Participants)
	assert.Empty(t, snap.Participants)
	assert.Equal(t, canvas, snap.CanvasSize)

	// Snapshot 不应惰性创建房间
	assert.Equal(t, 0, reg.Count("ghost"))
}
