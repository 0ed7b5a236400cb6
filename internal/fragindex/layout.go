package fragindex

import (
	"context"
	"io"
)

// Layout summarizes the top level boxes of a file.
type Layout struct {
	HasFtyp        bool  `json:"has_ftyp"`
	HasMoov        bool  `json:"has_moov"`
	HasSidx        bool  `json:"has_sidx"`
	HasMfra        bool  `json:"has_mfra"`
	MoovBeforeMoof bool  `json:"moov_before_moof"`
	MoofCount      int   `json:"moof_count"`
	MdatCount      int   `json:"mdat_count"`
	SidxOffset     int64 `json:"sidx_offset,omitempty"`
	SidxSize       int64 `json:"sidx_size,omitempty"`
	HeaderSize     int64 `json:"header_size"`
	DataSize       int64 `json:"data_size"`
	// Complete is false when the walk stopped at a malformed header or
	// was canceled.
	Complete bool `json:"complete"`
}

// HasNativeIndex reports whether the file already carries a segment index or
// a random access box, in which case a demuxer can seek without help.
func (l Layout) HasNativeIndex() bool {
	return l.HasSidx || l.HasMfra
}

// IsFragmented reports whether at least one movie fragment was found.
func (l Layout) IsFragmented() bool {
	return l.MoofCount > 0
}

// ProbeLayout walks the top level boxes of r. The walk checks ctx between
// boxes so a file made of many tiny boxes cannot hold a caller indefinitely.
func ProbeLayout(ctx context.Context, r io.ReaderAt, size int64) Layout {
	var layout Layout
	seenMoof := false
	offset := int64(0)
	for offset+8 <= size {
		if ctx.Err() != nil {
			return layout
		}
		boxSize, boxType, _, ok := readBoxHeader(r, offset, size)
		if !ok {
			return layout
		}
		switch boxType {
		case boxFtyp:
			layout.HasFtyp = true
		case boxMoov:
			layout.HasMoov = true
			if !seenMoof {
				layout.MoovBeforeMoof = true
			}
		case boxSidx:
			if !layout.HasSidx {
				layout.SidxOffset = offset
				layout.SidxSize = boxSize
			}
			layout.HasSidx = true
		case boxMfra:
			layout.HasMfra = true
		case boxMoof:
			seenMoof = true
			layout.MoofCount++
		case boxMdat:
			layout.MdatCount++
		}
		if seenMoof || boxType == boxMdat {
			layout.DataSize += boxSize
		} else {
			layout.HeaderSize += boxSize
		}
		offset += boxSize
	}
	layout.Complete = true
	return layout
}
