package model

import (
	"fmt"
)

// Attribute keys of a file entity.
const (
	FileAttrFilename     = "filename"
	FileAttrOriginalName = "originalName"
	FileAttrMimeType     = "mimeType"
	FileAttrSize         = "size"
	FileAttrStoragePath  = "storagePath"
	FileAttrPublic       = "public"
)

// File is the typed view of an entity of type "file". The bytes live in
// object storage under StoragePath.
type File struct {
	*Entity
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	StoragePath  string
	Public       bool // true = public files (7d expiry), false = private files (1h expiry)
}

// FileFromEntity reads the file attributes out of e.
func FileFromEntity(e *Entity) (*File, error) {
	if e == nil {
		return nil, nil
	}
	if e.Type != EntityTypeFile {
		return nil, fmt.Errorf("entity %s is a %q, not a file", e.ID, e.Type)
	}

	return &File{
		Entity:       e,
		Filename:     e.Attributes.String(FileAttrFilename),
		OriginalName: e.Attributes.String(FileAttrOriginalName),
		MimeType:     e.Attributes.String(FileAttrMimeType),
		Size:         e.Attributes.Int64(FileAttrSize),
		StoragePath:  e.Attributes.String(FileAttrStoragePath),
		Public:       e.Attributes.Bool(FileAttrPublic),
	}, nil
}

// FileAttributes builds the attribute document persisted for a file.
func FileAttributes(filename, originalName, mimeType string, size int64, storagePath string, public bool) Document {
	return Document{
		FileAttrFilename:     filename,
		FileAttrOriginalName: originalName,
		FileAttrMimeType:     mimeType,
		FileAttrSize:         size,
		FileAttrStoragePath:  storagePath,
		FileAttrPublic:       public,
	}
}
