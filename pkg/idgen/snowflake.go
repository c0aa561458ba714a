package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// 出款流水号
// ============================================================================
//
// 业务实体主键统一用 UUID，这里只负责模拟银行出款时返回的外部流水号，
// 要求全局唯一、按时间递增、便于人工核对。
//
//   41位毫秒时间戳 | 10位节点号 | 12位序列号
//
// 节点号区分 server / worker 等进程，同一进程内由互斥锁保证序列递增。
// ============================================================================

const (
	epoch        = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	nodeBits     = 10
	sequenceBits = 12
	maxNode      = -1 ^ (-1 << nodeBits)
	maxSequence  = -1 ^ (-1 << sequenceBits)
	nodeShift    = sequenceBits
	timeShift    = sequenceBits + nodeBits

	externalTxPrefix = "EXT-"
)

type Snowflake struct {
	mu       sync.Mutex
	lastMs   int64
	node     int64
	sequence int64
	now      func() int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

func NewSnowflake(node int64) (*Snowflake, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("节点号必须在 0-%d 之间: %d", maxNode, node)
	}
	return &Snowflake{node: node, now: func() int64 { return time.Now().UnixMilli() }}, nil
}

// Init 设置进程默认节点号，只有第一次调用生效；非法节点号回退到 0
func Init(node int64) {
	once.Do(func() {
		s, err := NewSnowflake(node)
		if err != nil {
			s, _ = NewSnowflake(0)
		}
		defaultGenerator = s
	})
}

func NextID() int64 {
	Init(0)
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// 时钟回拨时沿用上一次的毫秒，靠序列号继续递增
	if now < s.lastMs {
		now = s.lastMs
	}

	if now == s.lastMs {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.lastMs {
				now = s.now()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastMs = now

	return ((now - epoch) << timeShift) | (s.node << nodeShift) | s.sequence
}

// GenerateExternalTxID 模拟银行侧出款流水号，例如 EXT-1A2B3C4D5E6F
func GenerateExternalTxID() string {
	return externalTxPrefix + strings.ToUpper(strconv.FormatInt(NextID(), 36))
}
