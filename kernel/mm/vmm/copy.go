package vmm

import (
	"encoding/binary"

	"sv39os/kernel"
	"sv39os/kernel/mm"
)

// CopyOut copies src to the user virtual address dstVA. If part of the
// destination range is not mapped for user access, ErrBadAddress is
// returned; the bytes copied before that page stay in place.
func (pt PageTable) CopyOut(dstVA uintptr, src []byte) *kernel.Error {
	for len(src) > 0 {
		page := mm.PageRoundDown(dstVA)
		pa, ok := pt.WalkAddr(page)
		if !ok {
			return ErrBadAddress
		}

		n := copy(mm.Dmap(pa+(dstVA-page), mm.PageSize-(dstVA-page)), src)
		src = src[n:]
		dstVA = page + mm.PageSize
	}

	return nil
}

// CopyIn fills dst with the bytes found at the user virtual address srcVA.
// If part of the source range is not mapped for user access, ErrBadAddress
// is returned.
func (pt PageTable) CopyIn(dst []byte, srcVA uintptr) *kernel.Error {
	for len(dst) > 0 {
		page := mm.PageRoundDown(srcVA)
		pa, ok := pt.WalkAddr(page)
		if !ok {
			return ErrBadAddress
		}

		n := copy(dst, mm.Dmap(pa+(srcVA-page), mm.PageSize-(srcVA-page)))
		dst = dst[n:]
		srcVA = page + mm.PageSize
	}

	return nil
}

// CopyInStr copies a NUL-terminated string from the user virtual address
// srcVA into dst, including the terminator. At most limit bytes are examined,
// and never more than len(dst). It returns the number of bytes written to
// dst, terminator included.
//
// ErrStringTooLong is returned if no terminator is found within the limit
// and ErrBadAddress if the string crosses into an unmapped page.
func (pt PageTable) CopyInStr(dst []byte, srcVA, limit uintptr) (int, *kernel.Error) {
	if limit > uintptr(len(dst)) {
		limit = uintptr(len(dst))
	}

	var copied int
	for limit > 0 {
		page := mm.PageRoundDown(srcVA)
		pa, ok := pt.WalkAddr(page)
		if !ok {
			return copied, ErrBadAddress
		}

		n := mm.PageSize - (srcVA - page)
		if n > limit {
			n = limit
		}

		for _, b := range mm.Dmap(pa+(srcVA-page), n) {
			dst[copied] = b
			copied++
			if b == 0 {
				return copied, nil
			}
		}

		limit -= n
		srcVA = page + mm.PageSize
	}

	return copied, ErrStringTooLong
}

// CopyOutUint64s encodes values in the little-endian byte order of the
// hart and copies them to the user virtual address dstVA.
func (pt PageTable) CopyOutUint64s(dstVA uintptr, values ...uint64) *kernel.Error {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}

	return pt.CopyOut(dstVA, buf)
}
