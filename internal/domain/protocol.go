package domain

// Protocol is a monitored lending program.
//
// WatershedBlock is the slot chosen as the historical/current boundary when
// the protocol was first registered: the historical walker crawls backward
// from it, the forward scanner crawls forward from it.
type Protocol struct {
	Address            string // program public key (base58)
	WatershedBlock     int64
	LastBlockCollected *int64 // forward-scan watermark, nil until the first cycle
}

// NextBlock returns the first block the forward scanner still needs. A
// fresh protocol starts at its watershed block; the signature walker owns
// everything older.
func (p *Protocol) NextBlock() int64 {
	if p.LastBlockCollected != nil {
		return *p.LastBlockCollected + 1
	}
	return p.WatershedBlock
}
