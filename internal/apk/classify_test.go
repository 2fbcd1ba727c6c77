package apk

import "testing"

func TestClassify(t *testing.T) {
	cases := map[string]Class{
		"/alpine/v3.19/main/x86_64/APKINDEX.tar.gz":            ClassIndex,
		"/alpine/v3.19/main/x86_64/APKINDEX.tar.gz.asc":        ClassSignature,
		"/alpine/v3.19/community/aarch64/apkindex.tar.gz.sig":  ClassSignature,
		"/alpine/v3.19/main/x86_64/hello-1.0.apk":              ClassPackage,
		"/alpine/v3.18/testing/aarch64/hello-1.0-r1.APK":       ClassPackage,
		"/alpine/v3.22/releases/x86_64/alpine-3.22.iso.sha256": ClassOther,
	}
	for p, want := range cases {
		if got := Classify(p); got != want {
			t.Fatalf("Classify(%s) = %s, want %s", p, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"/alpine/v3.19/main/x86_64/APKINDEX.tar.gz":     "application/gzip",
		"/alpine/v3.19/main/x86_64/APKINDEX.tar.gz.asc": "application/pgp-signature",
		"/alpine/v3.19/main/x86_64/hello.apk":           "application/vnd.android.package-archive",
		"/alpine/v3.19/main/x86_64/unknown.blob":        "application/octet-stream",
	}
	for p, want := range cases {
		if got := ContentType(p); got != want {
			t.Fatalf("ContentType(%s) = %s, want %s", p, got, want)
		}
	}
}
