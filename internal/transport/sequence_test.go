package transport

import (
	"context"
	"testing"
	"time"
)

func TestTracker(t *testing.T) {
	t.Run("序列位交替", func(t *testing.T) {
		tr := NewTracker()
		for i := 0; i < 6; i++ {
			want := byte(i % 2)
			if got := tr.Next(); got != want {
				t.Fatalf("第%d条命令序列位应为%d，实际: %d", i, want, got)
			}
			tr.MarkSent()
			if !tr.AckMatches(want) {
				t.Fatalf("第%d条命令确认应命中", i)
			}
		}
	})

	t.Run("确认序列位不一致", func(t *testing.T) {
		tr := NewTracker()
		tr.MarkSent()
		if tr.AckMatches(1) {
			t.Fatalf("错误序列位不应命中")
		}
		if !tr.InFlight() {
			t.Fatalf("不命中时在途状态应保留")
		}
		if !tr.AckMatches(0) {
			t.Fatalf("正确序列位应命中")
		}
		if tr.InFlight() {
			t.Fatalf("命中后在途状态应清除")
		}
	})

	t.Run("无在途命令时确认不命中", func(t *testing.T) {
		tr := NewTracker()
		if tr.AckMatches(0) {
			t.Fatalf("无在途命令时不应命中")
		}
	})

	t.Run("超时翻转序列位", func(t *testing.T) {
		tr := NewTracker()
		tr.MarkSent() // seq 0
		tr.TimedOut()
		if tr.InFlight() {
			t.Fatalf("超时后在途状态应清除")
		}
		if got := tr.Next(); got != 1 {
			t.Fatalf("超时后序列位应翻转为1，实际: %d", got)
		}
	})

	t.Run("重连归零", func(t *testing.T) {
		tr := NewTracker()
		tr.MarkSent()
		tr.AckMatches(0)
		tr.Reset()
		if got := tr.Next(); got != 0 {
			t.Fatalf("归零后序列位应为0，实际: %d", got)
		}
		if tr.InFlight() {
			t.Fatalf("归零后不应有在途命令")
		}
	})
}

func TestThrottle(t *testing.T) {
	t.Run("突发容量内不阻塞", func(t *testing.T) {
		th := NewThrottle(100, 3)
		ctx := context.Background()
		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := th.Wait(ctx); err != nil {
				t.Fatalf("突发容量内应放行: %v", err)
			}
		}
		if time.Since(start) > 50*time.Millisecond {
			t.Fatalf("突发容量内不应等待")
		}
		st := th.Stats()
		if st.AllowedTotal != 3 || st.WaitedTotal != 0 {
			t.Fatalf("统计不符: %+v", st)
		}
	})

	t.Run("上下文取消中止等待", func(t *testing.T) {
		th := NewThrottle(1, 1)
		_ = th.Wait(context.Background()) // 耗尽桶
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := th.Wait(ctx); err == nil {
			t.Fatalf("取消后应返回错误")
		}
	})
}
