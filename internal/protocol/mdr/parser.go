package mdr

import "bytes"

// StreamDecoder 处理半包/粘包的流式解码器
// RFCOMM 信道按字节流交付，帧边界由定界符恢复
type StreamDecoder struct {
	buf     []byte
	maxBuf  int    // 缓冲上限，避免畸形数据无界增长
	dropped uint64 // 因损坏被丢弃的候选帧数
}

// NewStreamDecoder 创建流式解码器
func NewStreamDecoder(maxBuf int) *StreamDecoder {
	if maxBuf <= 0 {
		// 转义最坏情况下帧体翻倍
		maxBuf = (MaxPayloadLength + 16) * 2
	}
	return &StreamDecoder{maxBuf: maxBuf}
}

// Dropped 返回累计丢弃的损坏候选帧数
func (d *StreamDecoder) Dropped() uint64 {
	return d.dropped
}

// Reset 清空缓冲。重连后必须调用，避免旧会话残留字节污染新流
func (d *StreamDecoder) Reset() {
	d.buf = nil
}

// Feed 追加数据并尽可能解出多帧
// 损坏的候选帧滑动一个字节后重新同步并计入 Dropped；
// 仅当缓冲超限且找不到帧尾时返回 ErrFrameTooBig（超长候选已被丢弃，解码器仍可继续使用）
func (d *StreamDecoder) Feed(p []byte) ([]*Message, error) {
	if len(p) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, p...)
	msgs := make([]*Message, 0, 2)

	for {
		// 查找帧头
		start := bytes.IndexByte(d.buf, FrameStart)
		if start < 0 {
			// 无帧头，丢弃全部缓冲
			d.buf = d.buf[:0]
			return msgs, nil
		}
		if start > 0 {
			// 丢弃无效前缀
			d.buf = d.buf[start:]
		}
		// 帧体内的 0x3C 均被转义，首个裸 0x3C 即帧尾
		end := bytes.IndexByte(d.buf[1:], FrameEnd)
		if end < 0 {
			if len(d.buf) > d.maxBuf {
				// 超长无尾候选，跳过这个帧头重新同步
				d.buf = d.buf[1:]
				d.dropped++
				return msgs, ErrFrameTooBig
			}
			// 半包，等待更多
			return msgs, nil
		}
		candidate := d.buf[:end+2]
		msg, err := Decode(candidate)
		if err != nil {
			// 损坏帧，向后滑动一个字节继续寻找同步
			d.buf = d.buf[1:]
			d.dropped++
			continue
		}
		msgs = append(msgs, msg)
		// 消耗本帧
		d.buf = d.buf[end+2:]
		if len(d.buf) == 0 {
			return msgs, nil
		}
	}
}
