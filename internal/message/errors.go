package message

// ErrorReport is the payload of an Error/FatalError message (spec.md §6.5).
// A FatalError has the side effect of tearing down the owning task via the
// fatal-error sink; an ordinary Error does not — that distinction lives in
// which Ident is used, not in this struct.
type ErrorReport struct {
	EnglishText  string
	FileName     string
	Line         int
	Column       int
	FilePosition int64
	ErrorCode    int
}

// FindFileRequest/Reply implement the FindFile RPC (spec.md §6.6): an
// ordered list of candidate filenames, and the front-end's chosen one (or
// empty if none resolved).
type FindFileRequest struct {
	Candidates []string
}

type FindFileReply struct {
	Chosen string // "" if none of the candidates resolved
}

// ReadFileRequest/Reply implement logical-name resolution; if the resolved
// path is a URL, the front-end downloads it into a temp file and returns
// that local path.
type ReadFileRequest struct {
	LogicalName string
}

type ReadFileReply struct {
	LocalPath string
	WasURL    bool
}

// CreatedFile is the asynchronous notification sent whenever the backend
// writes a new output file.
type CreatedFile struct {
	Path string
}
