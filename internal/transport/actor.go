package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/metrics"
	"github.com/taoyao-code/headset-server/internal/protocol/mdr"
)

// Channel 指向设备的字节流信道
type Channel = io.ReadWriteCloser

// Dialer 建立设备信道
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc 函数式 Dialer 适配
type DialerFunc func(ctx context.Context) (Channel, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context) (Channel, error) { return f(ctx) }

// FrameSink 数据帧回调，设备状态缓存经此回流
type FrameSink func(*mdr.Message)

// Config 传输层配置
type Config struct {
	CommandTimeout       time.Duration // 单条命令确认+应答超时
	HandshakeTimeout     time.Duration // 初始化握手整体超时
	QueueSize            int           // 命令队列容量
	QueueDuringHandshake bool          // 握手期间暂存命令而非立即拒绝
	RatePerSec           int           // 每秒命令数上限
	Burst                int           // 突发容量
}

func (c *Config) normalize() {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 3 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

var errStopped = errors.New("stopped")

// Actor 设备传输执行器，一次连接一个实例，断开后重新创建
// 独占设备信道：帧的编码、写入与序列位管理都发生在单一循环 goroutine 内，
// 调用方只通过命令队列与完成通道交互。严格 FIFO，单飞行窗口，无流水线
type Actor struct {
	cfg     Config
	profile mdr.Profile
	dialer  Dialer
	sink    FrameSink
	logger  *zap.Logger
	metrics *metrics.AppMetrics

	ch       Channel
	dec      *mdr.StreamDecoder
	seq      *Tracker
	throttle *Throttle

	state  atomic.Int32
	reqC   chan *Pending
	frameC chan *mdr.Message
	errC   chan error

	loopCtx  context.Context
	loopStop context.CancelFunc

	mu     sync.Mutex
	closed bool

	readyC      chan struct{}
	doneC       chan struct{}
	failErr     error
	lastDropped uint64
}

// New 创建传输执行器。Start 之前不持有信道
func New(cfg Config, profile mdr.Profile, dialer Dialer, sink FrameSink, logger *zap.Logger, m *metrics.AppMetrics) *Actor {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	loopCtx, loopStop := context.WithCancel(context.Background())
	return &Actor{
		cfg:      cfg,
		profile:  profile,
		dialer:   dialer,
		sink:     sink,
		logger:   logger,
		metrics:  m,
		dec:      mdr.NewStreamDecoder(0),
		seq:      NewTracker(),
		throttle: NewThrottle(cfg.RatePerSec, cfg.Burst),
		reqC:     make(chan *Pending, cfg.QueueSize),
		frameC:   make(chan *mdr.Message, 16),
		errC:     make(chan error, 1),
		loopCtx:  loopCtx,
		loopStop: loopStop,
		readyC:   make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// State 返回当前会话状态
func (a *Actor) State() State {
	return State(a.state.Load())
}

// ThrottleStats 返回命令限速统计
func (a *Actor) ThrottleStats() ThrottleStats {
	return a.throttle.Stats()
}

// Start 建立信道并启动读循环与传输循环。握手结果经 WaitReady 观察
func (a *Actor) Start(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	a.logger.Info("connecting device channel")
	ch, err := a.dialer.Dial(ctx)
	if err != nil {
		err = fmt.Errorf("dial device channel: %w", err)
		a.abortDial(err)
		return err
	}
	a.ch = ch
	a.seq.Reset()
	a.dec.Reset()
	go a.readLoop()
	go a.run()
	return nil
}

// WaitReady 阻塞直到握手完成进入 Ready，或会话终止
func (a *Actor) WaitReady(ctx context.Context) error {
	select {
	case <-a.readyC:
		return nil
	case <-a.doneC:
		if a.failErr != nil {
			return a.failErr
		}
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 返回会话结束通知通道
func (a *Actor) Done() <-chan struct{} { return a.doneC }

// Err 返回会话终止原因。会话结束前与正常断开后均为 nil
func (a *Actor) Err() error {
	select {
	case <-a.doneC:
		return a.failErr
	default:
		return nil
	}
}

// Stop 主动断开：停止循环、关闭信道并以 ErrNotConnected 决议所有排队命令
func (a *Actor) Stop(ctx context.Context) error {
	if a.State() == StateDisconnected {
		return nil
	}
	a.loopStop()
	select {
	case <-a.doneC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit 将命令加入队列。队列满立即返回 ErrQueueFull，不阻塞调用方
// 握手期间的行为由 QueueDuringHandshake 决定：暂存直至 Ready 或立即拒绝
func (a *Actor) Submit(cmd Command) (*Pending, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrNotConnected
	}
	switch a.State() {
	case StateReady:
	case StateConnecting, StateAwaitingHandshakeAck:
		if !a.cfg.QueueDuringHandshake {
			return nil, ErrNotConnected
		}
	default:
		return nil, ErrNotConnected
	}
	p := newPending(cmd)
	select {
	case a.reqC <- p:
		return p, nil
	default:
		return nil, ErrQueueFull
	}
}

// Do 提交命令并等待完成
func (a *Actor) Do(ctx context.Context, cmd Command) (*mdr.Message, error) {
	p, err := a.Submit(cmd)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// run 传输主循环：先完成初始化握手，再逐条服务排队命令
func (a *Actor) run() {
	defer close(a.doneC)
	defer a.cleanup()

	if err := a.handshake(); err != nil {
		if !errors.Is(err, errStopped) {
			a.fault(fmt.Errorf("%w: %w", ErrHandshakeFailed, err))
		}
		return
	}
	a.setState(StateReady)
	close(a.readyC)
	if a.metrics != nil {
		a.metrics.ConnectedGauge.Set(1)
	}
	a.logger.Info("device session ready")

	for {
		select {
		case <-a.loopCtx.Done():
			return
		case err := <-a.errC:
			a.fault(fmt.Errorf("%w: %w", ErrTransportFault, err))
			return
		case msg := <-a.frameC:
			a.handleUnsolicited(msg)
		case p := <-a.reqC:
			if err := a.serve(p); err != nil {
				if !errors.Is(err, errStopped) {
					a.fault(err)
				}
				return
			}
		}
	}
}

// handshake 发送两阶段初始化命令，逐条等待传输确认
// 在两次确认到齐之前不会有任何功能命令上线路
func (a *Actor) handshake() error {
	a.setState(StateAwaitingHandshakeAck)
	start := time.Now()
	deadline := time.NewTimer(a.cfg.HandshakeTimeout)
	defer stopTimer(deadline)

	steps := []struct {
		name    string
		payload []byte
	}{
		{"protocol_info", mdr.HandshakeInit1()},
		{"support_functions", mdr.HandshakeInit2()},
	}
	for _, step := range steps {
		seq := a.seq.Next()
		if err := a.writeFrame(seq, step.payload); err != nil {
			return err
		}
		a.seq.MarkSent()
	waitAck:
		for {
			select {
			case <-a.loopCtx.Done():
				return errStopped
			case err := <-a.errC:
				return fmt.Errorf("%w: %w", ErrTransportFault, err)
			case <-deadline.C:
				a.seq.TimedOut()
				return ErrTimeout
			case msg := <-a.frameC:
				if msg.IsAck() {
					if a.seq.AckMatches(msg.Seq) {
						break waitAck
					}
					a.recordSequenceMismatch(msg.Seq)
					continue
				}
				// 握手期间设备会主动推送状态帧
				a.ackIncoming(msg)
				a.notify(msg)
			}
		}
		a.logger.Debug("handshake step acknowledged", zap.String("step", step.name))
	}
	if a.metrics != nil {
		a.metrics.HandshakeSeconds.Observe(time.Since(start).Seconds())
	}
	return nil
}

// serve 服务单条命令：限速、写帧、等待确认与应答
// 返回非 nil 错误表示信道已不可用，主循环随之退出
func (a *Actor) serve(p *Pending) error {
	if err := a.throttle.Wait(a.loopCtx); err != nil {
		p.resolve(nil, ErrNotConnected)
		return errStopped
	}
	seq := a.seq.Next()
	if err := a.writeFrame(seq, p.Cmd.Payload); err != nil {
		werr := fmt.Errorf("%w: %w", ErrTransportFault, err)
		p.resolve(nil, werr)
		a.recordCommand(p.Cmd.Name, "error")
		return werr
	}
	a.seq.MarkSent()
	a.logger.Debug("command sent",
		zap.String("command", p.Cmd.Name),
		zap.String("id", p.ID),
		zap.Uint8("seq", seq))

	timer := time.NewTimer(a.cfg.CommandTimeout)
	defer stopTimer(timer)

	acked := false
	var resp *mdr.Message
	for {
		select {
		case <-a.loopCtx.Done():
			p.resolve(nil, ErrNotConnected)
			return errStopped
		case err := <-a.errC:
			werr := fmt.Errorf("%w: %w", ErrTransportFault, err)
			p.resolve(nil, werr)
			a.recordCommand(p.Cmd.Name, "error")
			return werr
		case <-timer.C:
			// 超时不重发；翻转序列位，迟到的应答由主循环消费丢弃
			a.seq.TimedOut()
			p.resolve(nil, ErrTimeout)
			a.recordCommand(p.Cmd.Name, "timeout")
			a.logger.Warn("command timed out",
				zap.String("command", p.Cmd.Name),
				zap.Uint8("seq", seq))
			return nil
		case msg := <-a.frameC:
			if msg.IsAck() {
				if !a.seq.AckMatches(msg.Seq) {
					a.recordSequenceMismatch(msg.Seq)
					continue
				}
				acked = true
			} else {
				a.ackIncoming(msg)
				if p.Cmd.Kind == KindGet && resp == nil && msg.Opcode() == p.Cmd.WantOpcode {
					resp = msg
					a.deliver(msg)
				} else {
					a.notify(msg)
				}
			}
			if acked && (p.Cmd.Kind == KindSet || resp != nil) {
				p.resolve(resp, nil)
				a.recordCommand(p.Cmd.Name, "ok")
				return nil
			}
		}
	}
}

// readLoop 读取信道字节流并解码成帧，投递给主循环
func (a *Actor) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := a.ch.Read(buf)
		if n > 0 {
			msgs, derr := a.dec.Feed(buf[:n])
			if derr != nil {
				a.logger.Warn("stream decode error", zap.Error(derr))
			}
			if a.metrics != nil {
				if len(msgs) > 0 {
					a.metrics.FramesRx.Add(float64(len(msgs)))
				}
				if dropped := a.dec.Dropped(); dropped > a.lastDropped {
					a.metrics.FrameDecodeErrors.Add(float64(dropped - a.lastDropped))
					a.lastDropped = dropped
				}
			}
			for _, m := range msgs {
				select {
				case a.frameC <- m:
				case <-a.loopCtx.Done():
					return
				}
			}
		}
		if err != nil {
			select {
			case a.errC <- err:
			case <-a.loopCtx.Done():
			}
			return
		}
	}
}

// handleUnsolicited 处理空闲期到达的帧：数据帧回确认并交给缓存，多余确认帧丢弃
func (a *Actor) handleUnsolicited(msg *mdr.Message) {
	if msg.IsAck() {
		a.logger.Debug("stray ack dropped", zap.Uint8("seq", msg.Seq))
		return
	}
	a.ackIncoming(msg)
	a.notify(msg)
}

// notify 设备主动通知：计数并交给状态缓存
func (a *Actor) notify(msg *mdr.Message) {
	if a.metrics != nil {
		a.metrics.UnsolicitedTotal.WithLabelValues(fmt.Sprintf("0x%02X", msg.Opcode())).Inc()
	}
	a.deliver(msg)
}

func (a *Actor) deliver(msg *mdr.Message) {
	if a.sink != nil {
		a.sink(msg)
	}
}

// ackIncoming 对收到的数据帧回发确认，序列位取反
func (a *Actor) ackIncoming(msg *mdr.Message) {
	raw := mdr.EncodeAck(1 - msg.Seq)
	if _, err := a.ch.Write(raw); err != nil {
		a.logger.Warn("write ack failed", zap.Error(err))
		return
	}
	if a.metrics != nil {
		a.metrics.FramesTx.Inc()
	}
}

// writeFrame 编码并写出一条命令帧
func (a *Actor) writeFrame(seq byte, payload []byte) error {
	raw := mdr.Encode(a.profile.DataType, seq, payload)
	if _, err := a.ch.Write(raw); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if a.metrics != nil {
		a.metrics.FramesTx.Inc()
	}
	return nil
}

// fault 记录不可恢复错误并进入 Faulted。清理完成后回到 Disconnected
func (a *Actor) fault(err error) {
	a.failErr = err
	a.setState(StateFaulted)
	a.logger.Error("device session faulted", zap.Error(err))
}

// abortDial 拨号失败时的收尾：决议可能已排队的命令并结束会话
func (a *Actor) abortDial(err error) {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.drainQueue()
	a.failErr = err
	a.state.Store(int32(StateDisconnected))
	close(a.doneC)
}

// cleanup 会话收尾：关闭信道、拒绝新命令、决议所有排队命令
func (a *Actor) cleanup() {
	a.loopStop()
	_ = a.ch.Close()

	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.drainQueue()

	a.setState(StateDisconnected)
	if a.metrics != nil {
		a.metrics.ConnectedGauge.Set(0)
	}
	a.logger.Info("device session closed")
}

func (a *Actor) drainQueue() {
	for {
		select {
		case p := <-a.reqC:
			p.resolve(nil, ErrNotConnected)
			a.recordCommand(p.Cmd.Name, "rejected")
		default:
			return
		}
	}
}

func (a *Actor) setState(s State) {
	old := State(a.state.Swap(int32(s)))
	if old != s {
		a.logger.Info("session state changed",
			zap.String("from", old.String()),
			zap.String("to", s.String()))
	}
}

func (a *Actor) recordCommand(name, result string) {
	if a.metrics != nil {
		a.metrics.CommandTotal.WithLabelValues(name, result).Inc()
	}
}

func (a *Actor) recordSequenceMismatch(seq byte) {
	a.logger.Warn("ack did not match in-flight command", zap.Uint8("seq", seq))
	if a.metrics != nil {
		a.metrics.SequenceMismatch.Inc()
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
