package scanner

import (
	"path/filepath"
	"strings"
)

// File describes an uploaded media attachment as seen by the scan gate.
type File struct {
	Name string
	Size int64
	Mime string
}

type ScanResult struct {
	Safe    bool
	Threats []string
}

type ModerationResult struct {
	Safe  bool
	Flags []string
}

// Scanner is the security collaborator consulted before a media message
// record is created. An unsafe verdict aborts the send.
type Scanner interface {
	ScanForThreats(file File) (ScanResult, error)
	ModerateContent(file File) (ModerationResult, error)
}

const maxFileSize = 100 << 20 // 100 MB

var blockedExtensions = map[string]string{
	".exe": "executable",
	".bat": "executable",
	".cmd": "executable",
	".scr": "executable",
	".js":  "script",
	".vbs": "script",
	".jar": "executable-archive",
}

// BasicScanner applies size and extension heuristics. Deep content
// inspection lives in an external service behind the same interface.
type BasicScanner struct{}

func NewBasicScanner() *BasicScanner {
	return &BasicScanner{}
}

func (s *BasicScanner) ScanForThreats(file File) (ScanResult, error) {
	var threats []string

	ext := strings.ToLower(filepath.Ext(file.Name))
	if kind, ok := blockedExtensions[ext]; ok {
		threats = append(threats, kind+" file type "+ext)
	}
	if file.Size > maxFileSize {
		threats = append(threats, "file exceeds size limit")
	}

	return ScanResult{Safe: len(threats) == 0, Threats: threats}, nil
}

func (s *BasicScanner) ModerateContent(file File) (ModerationResult, error) {
	var flags []string
	if strings.HasPrefix(file.Mime, "application/octet-stream") && filepath.Ext(file.Name) == "" {
		flags = append(flags, "unidentifiable content")
	}
	return ModerationResult{Safe: len(flags) == 0, Flags: flags}, nil
}
