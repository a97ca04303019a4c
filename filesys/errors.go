package filesys

import "errors"

var (
	ErrNoSpace       = errors.New("no free sectors on disk")
	ErrPathError     = errors.New("bad path")
	ErrNameCollision = errors.New("name already in directory")
	ErrNotFound      = errors.New("no such file or directory")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrNotDirectory  = errors.New("not a directory")
	ErrPipeFull      = errors.New("pipe full")
)
