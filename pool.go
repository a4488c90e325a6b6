package memdump

import "sync"

var regionReaderPool = sync.Pool{
	New: func() any {
		return &RegionReader{}
	},
}

func getRegionReader(pid int, start, end uint64) *RegionReader {
	r := regionReaderPool.Get().(*RegionReader)
	r.pid = pid
	r.start = start
	r.end = end
	r.size = end - start
	r.off = 0
	return r
}

func freeRegionReader(r *RegionReader) {
	r.pid = 0
	r.lIov[0].Base = nil
	regionReaderPool.Put(r)
}
