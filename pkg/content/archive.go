package content

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"
)

// writeEntryHeader writes one copydown archive entry header in the fixed
// field order original_source/src/bdfa.c's format describes.
func writeEntryHeader(w io.Writer, h entryHeader) error {
	if err := binary.Write(w, binary.BigEndian, h.pathLen); err != nil {
		return err
	}
	if _, err := io.WriteString(w, h.path); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.mode); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.uid); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.gid); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, h.size)
}

// readEntryHeader reads one header previously written by writeEntryHeader.
// io.EOF signals a clean end of archive (no partial header was read).
func readEntryHeader(r io.Reader) (entryHeader, error) {
	var h entryHeader
	if err := binary.Read(r, binary.BigEndian, &h.pathLen); err != nil {
		return entryHeader{}, err
	}
	buf := make([]byte, h.pathLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return entryHeader{}, fmt.Errorf("reading archive entry path: %w", err)
	}
	h.path = string(buf)
	for _, field := range []interface{}{&h.mode, &h.uid, &h.gid, &h.size} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return entryHeader{}, err
		}
	}
	return h, nil
}

// ArchiveEntry is one unpacked copydown archive record, streamed rather
// than buffered in full so large archives don't balloon memory.
type ArchiveEntry struct {
	Path string
	Mode uint32
	UID  uint32
	GID  uint32
	Size uint64
	R    io.Reader
}

// WalkArchive reads r as a copydown archive produced by PackArchive,
// invoking fn once per entry with a reader bounded to that entry's size.
// Whatever fn leaves unread of an entry is discarded before WalkArchive
// advances to the next entry.
func WalkArchive(r io.Reader, fn func(ArchiveEntry) error) error {
	for {
		hdr, err := readEntryHeader(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive header: %w", err)
		}
		lr := io.LimitReader(r, int64(hdr.Size))
		if err := fn(ArchiveEntry{
			Path: hdr.path,
			Mode: hdr.mode,
			UID:  hdr.uid,
			GID:  hdr.gid,
			Size: hdr.size,
			R:    lr,
		}); err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, lr); err != nil {
			return fmt.Errorf("draining archive entry %s: %w", hdr.path, err)
		}
	}
}

// statOwnership extracts uid/gid from a FileInfo on platforms exposing
// syscall.Stat_t (all clockd-supported targets are Unix-like).
func statOwnership(info os.FileInfo) (uid, gid uint32) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return st.Uid, st.Gid
}
