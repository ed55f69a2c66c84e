// Package metainfo reconstructs a typed torrent descriptor by walking a
// bencode token stream directly, rather than decoding to a bencode.Value
// first and then picking it apart — this lets it capture the exact byte
// range of the info dictionary for the infohash while still tolerating
// unknown keys.
package metainfo

// File is one entry of a multi-file torrent's file list.
type File struct {
	Length int64
	Path   []string
}

// Info is the info dictionary of a torrent: either single-file (Length set,
// Files nil) or multi-file (Files set, Length zero).
type Info struct {
	Name        string
	PieceLength int64
	Pieces      []byte
	Length      int64
	Files       []File

	beginPos int
	endPos   int
}

// Multi reports whether this is a multi-file torrent.
func (i *Info) Multi() bool { return len(i.Files) > 0 }

// NumPieces returns the number of 20-byte SHA-1 piece hashes.
func (i *Info) NumPieces() int { return len(i.Pieces) / 20 }

// PieceHash returns the n'th piece hash.
func (i *Info) PieceHash(n int) []byte {
	return i.Pieces[n*20 : (n+1)*20]
}

// Torrent is a parsed .torrent metainfo file.
type Torrent struct {
	Announce     string
	AnnounceList [][]string
	CreationDate int64
	Comment      string
	CreatedBy    string
	Encoding     string
	Info         Info

	// InfoHash is the SHA-1 of the exact byte range spanned by the info
	// dictionary in the source buffer, computed from tokenizer positions
	// rather than re-encoding Info — byte-exactness matters for peer-wire
	// compatibility.
	InfoHash [20]byte
}
