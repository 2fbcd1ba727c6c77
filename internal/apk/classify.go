package apk

import (
	"mime"
	"path"
	"strings"
)

// Class 描述 Alpine 仓库中文件的类别。
type Class string

const (
	ClassIndex     Class = "index"
	ClassSignature Class = "signature"
	ClassPackage   Class = "package"
	ClassOther     Class = "other"
)

const defaultContentType = "application/octet-stream"

// Classify 判断缓存键对应的文件类别，大小写不敏感。
func Classify(key string) Class {
	clean := canonicalPath(key)
	switch {
	case isIndexPath(clean):
		return ClassIndex
	case isSignaturePath(clean):
		return ClassSignature
	case strings.HasSuffix(clean, ".apk"):
		return ClassPackage
	default:
		return ClassOther
	}
}

// ContentType 根据文件后缀推断响应 Content-Type，未知类型回退为 octet-stream。
func ContentType(key string) string {
	clean := canonicalPath(key)
	switch {
	case strings.HasSuffix(clean, ".apk"):
		return "application/vnd.android.package-archive"
	case strings.HasSuffix(clean, ".tar.gz"):
		return "application/gzip"
	case strings.HasSuffix(clean, ".asc") || strings.HasSuffix(clean, ".sig"):
		return "application/pgp-signature"
	}
	if ct := mime.TypeByExtension(path.Ext(clean)); ct != "" {
		return ct
	}
	return defaultContentType
}

func isIndexPath(p string) bool {
	return strings.HasSuffix(p, "/apkindex.tar.gz")
}

func isSignaturePath(p string) bool {
	return strings.HasSuffix(p, "/apkindex.tar.gz.asc") || strings.HasSuffix(p, "/apkindex.tar.gz.sig")
}

func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	return strings.ToLower(path.Clean("/" + strings.TrimSpace(p)))
}
