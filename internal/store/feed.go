package store

// offer 向容量为 1 的快照通道投递，未被读取的旧快照被替换
// 调用方必须是该通道的唯一发送者
func offer(ch chan []Record, snapshot []Record) {
	select {
	case ch <- snapshot:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}
