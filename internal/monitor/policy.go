package monitor

// Policy 两档滞回策略：高于 HighWaterMB 降到 LowTier，低于 LowWaterMB
// 升到 HighTier，两者之间不变。
type Policy struct {
	HighWaterMB uint64
	LowWaterMB  uint64
	LowTier     int
	HighTier    int
}

// DefaultPolicy 返回默认策略（500MB / 230MB，1 / 2）
func DefaultPolicy() Policy {
	return Policy{
		HighWaterMB: 500,
		LowWaterMB:  230,
		LowTier:     1,
		HighTier:    2,
	}
}

// Next 根据本次采样返回新的档位，每个采样独立判断
func (p Policy) Next(current int, usageMB uint64) int {
	switch {
	case usageMB > p.HighWaterMB && current != p.LowTier:
		return p.LowTier
	case usageMB < p.LowWaterMB && current != p.HighTier:
		return p.HighTier
	default:
		return current
	}
}
