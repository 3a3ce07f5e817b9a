package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/headset-server/internal/protocol/mdr"
)

// Kind 命令类别
type Kind int

const (
	// KindGet 查询：需等待传输确认与对应的数据应答
	KindGet Kind = iota
	// KindSet 设置：仅需传输确认，设备状态经后续通知帧回流
	KindSet
)

// Command 一条待发送的设备命令载荷
type Command struct {
	Name    string // 命令名，用于日志与指标
	Kind    Kind
	Payload []byte
	// WantOpcode 查询命令期待的应答命令码（请求码+1），KindSet 忽略
	WantOpcode byte
}

// Pending 在队命令及其完成通道。每条命令恰好被决议一次
type Pending struct {
	ID        string
	Cmd       Command
	Submitted time.Time

	resp *mdr.Message
	err  error
	done chan struct{}
}

func newPending(cmd Command) *Pending {
	return &Pending{
		ID:        uuid.NewString(),
		Cmd:       cmd,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// resolve 决议命令结果。重复调用无效
func (p *Pending) resolve(resp *mdr.Message, err error) {
	select {
	case <-p.done:
		return
	default:
	}
	p.resp = resp
	p.err = err
	close(p.done)
}

// Wait 阻塞等待命令完成或上下文取消
// 取消只放弃等待，传输循环仍会继续处理该命令并消费其应答
func (p *Pending) Wait(ctx context.Context) (*mdr.Message, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
